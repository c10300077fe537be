package provider

import (
	"fmt"
	"strings"
)

// Render builds the instruction text for op. Caller values are embedded
// verbatim.
func Render(op Operation, p Params) (string, error) {
	switch op {
	case Summarize:
		if err := requireParam("text", p.Text); err != nil {
			return "", err
		}
		return "Resuma o seguinte texto em português de forma concisa: " + p.Text, nil

	case AutoReply:
		if err := requireParam("text", p.Text); err != nil {
			return "", err
		}
		return "Gere uma resposta automática profissional e útil para: " + p.Text, nil

	case Translate:
		if err := requireParam("text", p.Text); err != nil {
			return "", err
		}
		if err := requireParam("target language", p.TargetLanguage); err != nil {
			return "", err
		}
		return fmt.Sprintf("Traduza o seguinte texto para %s: %s", p.TargetLanguage, p.Text), nil

	case GenerateCode:
		if err := requireParam("description", p.Text); err != nil {
			return "", err
		}
		if err := requireParam("programming language", p.ProgrammingLanguage); err != nil {
			return "", err
		}
		return fmt.Sprintf("Gere código em %s para: %s", p.ProgrammingLanguage, p.Text), nil

	case ProductDescription:
		if err := requireParam("product name", p.ProductName); err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"Gere uma descrição atrativa para o produto '%s' da categoria '%s' com preço R$ %.2f. "+
				"A descrição deve ser persuasiva e destacar benefícios.",
			p.ProductName, p.ProductCategory, p.ProductPrice,
		), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

func requireParam(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s", ErrMissingParam, name)
	}
	return nil
}
