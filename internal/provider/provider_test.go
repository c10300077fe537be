package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	completeFn func(ctx context.Context, prompt string) (string, error)
	prompts    []string
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.completeFn(ctx, prompt)
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	return m.embedFn(ctx, text)
}

func echoCompleter() *mockCompleter {
	return &mockCompleter{completeFn: func(_ context.Context, p string) (string, error) { return p, nil }}
}

func TestGenerate_ReturnsCompletionUnmodified(t *testing.T) {
	raw := "  Resumo:\n\n lista com espaços  \n"
	mc := &mockCompleter{completeFn: func(context.Context, string) (string, error) { return raw, nil }}
	c := NewClient(mc, nil)

	got, err := c.Generate(context.Background(), Summarize, Params{Text: "texto longo"})
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	require.Len(t, mc.prompts, 1)
	assert.Equal(t, "Resuma o seguinte texto em português de forma concisa: texto longo", mc.prompts[0])
}

func TestGenerate_BackendFailureIsProviderError(t *testing.T) {
	cause := errors.New("quota exceeded")
	mc := &mockCompleter{completeFn: func(context.Context, string) (string, error) { return "", cause }}

	var failed []string
	c := NewClient(mc, nil, WithFailureHook(func(op string) { failed = append(failed, op) }))

	_, err := c.Generate(context.Background(), AutoReply, Params{Text: "oi"})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "auto_reply", pe.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"auto_reply"}, failed)
}

func TestGenerate_UnknownOperation(t *testing.T) {
	mc := echoCompleter()
	c := NewClient(mc, nil)

	_, err := c.Generate(context.Background(), Operation("poem"), Params{Text: "x"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Empty(t, mc.prompts, "no request should reach the backend")
}

func TestGenerate_AppliesTimeout(t *testing.T) {
	mc := &mockCompleter{completeFn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := NewClient(mc, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.Generate(context.Background(), Summarize, Params{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerate_NoBackendConfigured(t *testing.T) {
	c := NewClient(nil, nil)
	_, err := c.Generate(context.Background(), Summarize, Params{Text: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEmbed(t *testing.T) {
	me := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	}}
	c := NewClient(nil, me, WithDimension(3))

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	me := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return []float32{1, 2}, nil
	}}
	c := NewClient(nil, me, WithDimension(1536))

	_, err := c.Embed(context.Background(), "hello")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "embed", pe.Op)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestProviderError_Message(t *testing.T) {
	err := &ProviderError{Op: "summarize", Err: errors.New("boom")}
	assert.Equal(t, "provider summarize: boom", err.Error())
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		p    Params
		want string
	}{
		{
			"summarize", Summarize, Params{Text: "abc"},
			"Resuma o seguinte texto em português de forma concisa: abc",
		},
		{
			"auto reply", AutoReply, Params{Text: "Meu pedido atrasou"},
			"Gere uma resposta automática profissional e útil para: Meu pedido atrasou",
		},
		{
			"translate", Translate, Params{Text: "bom dia", TargetLanguage: "inglês"},
			"Traduza o seguinte texto para inglês: bom dia",
		},
		{
			"generate code", GenerateCode, Params{Text: "ordenar uma lista", ProgrammingLanguage: "Go"},
			"Gere código em Go para: ordenar uma lista",
		},
		{
			"product description", ProductDescription,
			Params{ProductName: "Caneca", ProductCategory: "cozinha", ProductPrice: 29.9},
			"Gere uma descrição atrativa para o produto 'Caneca' da categoria 'cozinha' com preço R$ 29.90. " +
				"A descrição deve ser persuasiva e destacar benefícios.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.op, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_MissingParams(t *testing.T) {
	cases := map[Operation]Params{
		Summarize:          {},
		AutoReply:          {Text: "   "},
		Translate:          {Text: "x"},
		GenerateCode:       {Text: "x"},
		ProductDescription: {ProductCategory: "y", ProductPrice: 1},
	}
	for op, p := range cases {
		_, err := Render(op, p)
		assert.ErrorIs(t, err, ErrMissingParam, string(op))
	}
}

func TestRender_EveryOperationHasTemplate(t *testing.T) {
	full := Params{
		Text: "t", TargetLanguage: "l", ProgrammingLanguage: "go",
		ProductName: "n", ProductCategory: "c", ProductPrice: 1,
	}
	for _, op := range Operations {
		got, err := Render(op, full)
		require.NoError(t, err, op)
		assert.False(t, strings.TrimSpace(got) == "", op)
	}
}
