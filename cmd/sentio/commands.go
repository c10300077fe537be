package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sentio/internal/config"
	"github.com/kalambet/sentio/internal/extract"
	"github.com/kalambet/sentio/internal/sentiment"
)

type messageView struct {
	ID              int64     `json:"id"`
	OriginalMessage string    `json:"originalMessage"`
	Summary         string    `json:"summary"`
	AutoResponse    string    `json:"autoResponse"`
	Sentiment       string    `json:"sentiment"`
	SentimentScore  float64   `json:"sentimentScore"`
	CreatedAt       time.Time `json:"createdAt"`
}

type productView struct {
	ID                   int64   `json:"id"`
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	GeneratedDescription string  `json:"generatedDescription"`
	Price                float64 `json:"price"`
	Category             string  `json:"category"`
}

func printMessages(w io.Writer, msgs []messageView) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages found.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s  %s  %s [%.2f]\n",
			colorize(colorBold, fmt.Sprintf("#%d", m.ID)),
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			sentimentColor(m.Sentiment),
			m.SentimentScore,
		)
		fmt.Fprintf(w, "  %s\n", truncate(m.OriginalMessage, 200))
		if m.Summary != "" {
			fmt.Fprintf(w, "  Summary: %s\n", truncate(m.Summary, 200))
		}
	}
}

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process [message]",
	Short: "Enrich, store and index a chat message",
	Long: `Enrich, store and index a chat message.

Examples:
  sentio process "O atendimento foi ótimo"
  sentio process --file ./reclamacao.txt
  sentio process --file ./carta.pdf --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		text := strings.Join(args, " ")
		if file != "" {
			if text != "" {
				return fmt.Errorf("pass either a message or --file, not both")
			}
			t, err := extract.File(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			text = t
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("a message or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/chat/process", map[string]string{"message": text})
		if err != nil {
			return err
		}

		var result struct {
			ID             int64   `json:"id"`
			Summary        string  `json:"summary"`
			AutoResponse   string  `json:"autoResponse"`
			Sentiment      string  `json:"sentiment"`
			SentimentScore float64 `json:"sentimentScore"`
			Diagnostics    []struct {
				Step    string `json:"step"`
				Message string `json:"message"`
			} `json:"diagnostics"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return printJSON(out, result)
		}
		printSuccess("Stored message #%d", result.ID)
		fmt.Fprintf(out, "Sentiment: %s (%.2f)\n", sentimentColor(result.Sentiment), result.SentimentScore)
		fmt.Fprintf(out, "Summary:   %s\n", result.Summary)
		fmt.Fprintf(out, "Reply:     %s\n", result.AutoResponse)
		for _, d := range result.Diagnostics {
			printWarning("%s unavailable: %s", d.Step, d.Message)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().String("file", "", "read the message from a text or PDF file")
	processCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over stored messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/search/semantic", map[string]any{"query": query, "topK": topK})
		if err != nil {
			return err
		}
		var msgs []messageView
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		printMessages(cmd.OutOrStdout(), msgs)
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 5, "maximum number of results")
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every stored message into the vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, _ := cmd.Flags().GetInt("batch")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/index/reindex", map[string]any{"batchSize": batch})
		if err != nil {
			return err
		}
		var res struct {
			Scanned int `json:"scanned"`
			Indexed int `json:"indexed"`
			Failed  int `json:"failed"`
		}
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %d of %d messages\n", res.Indexed, res.Scanned)
		if res.Failed > 0 {
			fmt.Fprintln(out, colorize(colorYellow, fmt.Sprintf("%d messages could not be embedded", res.Failed)))
		}
		return nil
	},
}

func init() {
	reindexCmd.Flags().Int("batch", 100, "messages loaded per page")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		label, _ := cmd.Flags().GetString("sentiment")

		path := "/api/chat/history?limit=" + strconv.Itoa(limit)
		if label != "" {
			l, err := sentiment.ParseLabel(label)
			if err != nil {
				return err
			}
			path = fmt.Sprintf("/api/chat/sentiment/%s?limit=%d", l, limit)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var msgs []messageView
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		printMessages(cmd.OutOrStdout(), msgs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of messages")
	historyCmd.Flags().String("sentiment", "", "only messages with this label (POSITIVE, NEGATIVE, NEUTRAL)")
}

// --- product ---

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage the product catalog",
}

var productAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a product with a generated description",
	Long: `Add a product with a generated description.

Example:
  sentio product add --name Caneca --price 29.90 --category cozinha --description "Cerâmica, 300ml"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		price, _ := cmd.Flags().GetFloat64("price")
		category, _ := cmd.Flags().GetString("category")

		if strings.TrimSpace(name) == "" || strings.TrimSpace(category) == "" {
			return fmt.Errorf("--name and --category are required")
		}
		if !(price > 0) {
			return fmt.Errorf("--price must be greater than 0")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/products", map[string]any{
			"name":        name,
			"description": description,
			"price":       price,
			"category":    category,
		})
		if err != nil {
			return err
		}
		var prod productView
		if err := decodeJSON(resp, &prod); err != nil {
			return err
		}
		printSuccess("Created product #%d", prod.ID)
		if prod.GeneratedDescription == "" {
			printWarning("no generated description (provider unavailable)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), prod.GeneratedDescription)
		return nil
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		path := "/api/products"
		if category != "" {
			path = "/api/products/category/" + url.PathEscape(category)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var prods []productView
		if err := decodeJSON(resp, &prods); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(prods) == 0 {
			fmt.Fprintln(out, "No products found.")
			return nil
		}
		for _, p := range prods {
			fmt.Fprintf(out, "%s  %s  R$ %.2f  [%s]\n", colorize(colorBold, fmt.Sprintf("#%d", p.ID)), p.Name, p.Price, p.Category)
			if p.GeneratedDescription != "" {
				fmt.Fprintf(out, "  %s\n", truncate(p.GeneratedDescription, 200))
			}
		}
		return nil
	},
}

func init() {
	productAddCmd.Flags().String("name", "", "product name")
	productAddCmd.Flags().String("description", "", "product description")
	productAddCmd.Flags().Float64("price", 0, "price in BRL")
	productAddCmd.Flags().String("category", "", "product category")
	productListCmd.Flags().String("category", "", "only products in this category")
	productCmd.AddCommand(productAddCmd, productListCmd)
}

// --- ai ---

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Direct text operations",
}

var aiSummarizeCmd = &cobra.Command{
	Use:   "summarize <text>",
	Short: "Summarize a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return aiCall(cmd, "/api/ai/summarize", map[string]string{"text": strings.Join(args, " ")}, "summary")
	},
}

var aiTranslateCmd = &cobra.Command{
	Use:   "translate <text>",
	Short: "Translate a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		return aiCall(cmd, "/api/ai/translate", map[string]string{"text": strings.Join(args, " "), "targetLanguage": to}, "translation")
	},
}

var aiCodeCmd = &cobra.Command{
	Use:   "code <description>",
	Short: "Generate code from a description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("language")
		return aiCall(cmd, "/api/ai/generate-code", map[string]string{"description": strings.Join(args, " "), "language": lang}, "code")
	},
}

func aiCall(cmd *cobra.Command, path string, body map[string]string, field string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), path, body)
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result[field])
	return nil
}

func init() {
	aiTranslateCmd.Flags().String("to", "inglês", "target language")
	aiCodeCmd.Flags().String("language", "Go", "programming language")
	aiCmd.AddCommand(aiSummarizeCmd, aiTranslateCmd, aiCodeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys and their environment variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %-28s %-8s %s\n", k.Key, k.Type, k.EnvVar)
		}
		fmt.Fprintf(out, "\nSecrets (environment only): %s\n", strings.Join(config.SecretEnvVars(), ", "))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configKeysCmd)
}
