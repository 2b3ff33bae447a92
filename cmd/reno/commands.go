package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renohq/reno/internal/config"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message...>",
	Short: "Send a message to the assistant",
	Long: `Send one conversational turn to the assistant.

Without --conversation a new conversation is created first.

Examples:
  reno chat "how do I paint my living room?"
  reno chat --persona homeowner --mode agent "show me ideas for my kitchen"
  reno chat --conversation 3f2a91 "what about the ceiling?"
  reno chat --attach ./floorplan.pdf "here is the floor plan"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		conversationID, _ := cmd.Flags().GetString("conversation")
		attachPaths, _ := cmd.Flags().GetStringArray("attach")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if conversationID == "" {
			persona, _ := cmd.Flags().GetString("persona")
			scenario, _ := cmd.Flags().GetString("scenario")
			mode, _ := cmd.Flags().GetString("mode")
			homeID, _ := cmd.Flags().GetString("home")
			roomID, _ := cmd.Flags().GetString("room")

			resp, err := client.post(ctx, "/v1/conversations", map[string]any{
				"persona":  persona,
				"scenario": scenario,
				"mode":     mode,
				"home_id":  homeID,
				"room_id":  roomID,
			})
			if err != nil {
				return err
			}
			var conv struct {
				ID string `json:"id"`
			}
			if err := decodeJSON(resp, &conv); err != nil {
				return err
			}
			conversationID = conv.ID
			printStep("Started conversation %s", conversationID)
		}

		var attachments []map[string]string
		for _, path := range attachPaths {
			att, err := readAttachment(path)
			if err != nil {
				return err
			}
			attachments = append(attachments, att)
		}

		body := map[string]any{"text": text}
		if len(attachments) > 0 {
			body["attachments"] = attachments
		}
		resp, err := client.post(ctx, "/v1/conversations/"+conversationID+"/turns", body)
		if err != nil {
			return err
		}

		var result struct {
			Text     string `json:"text"`
			Metadata struct {
				Intent           string `json:"intent"`
				Degraded         bool   `json:"degraded"`
				SuggestedActions []struct {
					ID    string `json:"id"`
					Label string `json:"label"`
				} `json:"suggested_actions"`
				SuggestedQuestions []struct {
					Text string `json:"text"`
				} `json:"suggested_questions"`
			} `json:"metadata"`
			Attachments []struct {
				Kind    string `json:"kind"`
				Locator string `json:"locator"`
			} `json:"attachments"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Text)

		for _, a := range result.Attachments {
			printStatus("Attachment", "%s (%s)", a.Locator, a.Kind)
		}
		if len(result.Metadata.SuggestedActions) > 0 {
			fmt.Println()
			for _, a := range result.Metadata.SuggestedActions {
				fmt.Printf("  %s %s\n", colorize(colorCyan, "["+a.ID+"]"), a.Label)
			}
		}
		for _, q := range result.Metadata.SuggestedQuestions {
			fmt.Printf("  %s\n", colorize(colorYellow, "? "+q.Text))
		}
		if result.Metadata.Degraded {
			printWarning("reply was degraded; the generation backend had trouble")
		}
		return nil
	},
}

func readAttachment(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return map[string]string{
		"filename":     filepath.Base(path),
		"content_type": contentType,
		"data":         base64.StdEncoding.EncodeToString(data),
	}, nil
}

func init() {
	chatCmd.Flags().StringP("conversation", "c", "", "existing conversation id")
	chatCmd.Flags().String("persona", "", "persona for a new conversation (homeowner, diy_worker, contractor)")
	chatCmd.Flags().String("scenario", "", "scenario for a new conversation (diy_project_plan, contractor_quotes)")
	chatCmd.Flags().String("mode", "", "mode for a new conversation (chat, agent)")
	chatCmd.Flags().String("home", "", "home id scope for a new conversation")
	chatCmd.Flags().String("room", "", "room id scope for a new conversation")
	chatCmd.Flags().StringArray("attach", nil, "file to attach (jpeg, png, webp, pdf); repeatable")
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List and inspect conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/conversations?limit=%d", limit))
		if err != nil {
			return err
		}

		var convs []struct {
			ID        string `json:"id"`
			Persona   string `json:"persona"`
			Mode      string `json:"mode"`
			Status    string `json:"status"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}

		if len(convs) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, c := range convs {
			fmt.Printf("%s  %s  %s/%s  %s\n",
				colorize(colorCyan, c.ID[:8]),
				c.UpdatedAt,
				c.Persona, c.Mode,
				c.Status,
			)
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/conversations/"+args[0]+"/messages")
		if err != nil {
			return err
		}

		var messages []struct {
			Role        string `json:"role"`
			Content     string `json:"content"`
			Attachments []struct {
				Kind    string `json:"kind"`
				Locator string `json:"locator"`
			} `json:"attachments"`
		}
		if err := decodeJSON(resp, &messages); err != nil {
			return err
		}

		for _, m := range messages {
			label := colorize(colorBold, m.Role+":")
			fmt.Printf("%s %s\n", label, m.Content)
			for _, a := range m.Attachments {
				fmt.Printf("  %s %s (%s)\n", colorize(colorCyan, "attachment"), a.Locator, a.Kind)
			}
		}
		return nil
	},
}

var conversationsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/conversations/"+args[0]+"/archive", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Archived conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsArchiveCmd)
}

// --- action ---

var actionCmd = &cobra.Command{
	Use:   "action <conversation-id> <action-id>",
	Short: "Run a suggested follow-up action",
	Long: `Run one catalog action against a conversation.

Examples:
  reno action 3f2a91 create_diy_plan
  reno action 3f2a91 export_pdf
  reno action 3f2a91 find_contractors --param location="Portland, OR"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, actionID := args[0], args[1]
		paramFlags, _ := cmd.Flags().GetStringArray("param")

		params := map[string]string{}
		for _, p := range paramFlags {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("invalid --param %q, expected key=value", p)
			}
			params[k] = v
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(),
			"/v1/conversations/"+conversationID+"/actions/"+actionID,
			map[string]any{"params": params},
		)
		if err != nil {
			return err
		}

		var out struct {
			Status     string `json:"status"`
			Prompt     string `json:"prompt"`
			Text       string `json:"text"`
			Attachment *struct {
				Locator     string `json:"locator"`
				ContentType string `json:"content_type"`
			} `json:"attachment"`
			Images []struct {
				Locator string `json:"locator"`
			} `json:"images"`
			Products []struct {
				Title string `json:"title"`
				URL   string `json:"url"`
				Price string `json:"price"`
			} `json:"products"`
			Contractors []struct {
				Name    string  `json:"name"`
				Rating  float64 `json:"rating"`
				Contact string  `json:"contact"`
			} `json:"contractors"`
			Journey *struct {
				Template string `json:"template"`
			} `json:"journey"`
			Steps []struct {
				Position int    `json:"position"`
				Title    string `json:"title"`
				Status   string `json:"status"`
			} `json:"steps"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if out.Status == "needs_input" {
			printWarning("%s", out.Prompt)
			return nil
		}
		if out.Text != "" {
			fmt.Println(out.Text)
		}
		if out.Attachment != nil {
			printStatus("Document", "%s (%s)", out.Attachment.Locator, out.Attachment.ContentType)
		}
		for _, img := range out.Images {
			printStatus("Image", "%s", img.Locator)
		}
		for _, p := range out.Products {
			price := p.Price
			if price == "" {
				price = "n/a"
			}
			fmt.Printf("  %s  %s  %s\n", colorize(colorBold, p.Title), price, p.URL)
		}
		for _, c := range out.Contractors {
			fmt.Printf("  %s  %.1f  %s\n", colorize(colorBold, c.Name), c.Rating, c.Contact)
		}
		if out.Journey != nil {
			printSuccess("Started %s journey", out.Journey.Template)
			for _, s := range out.Steps {
				fmt.Printf("  %d. %s (%s)\n", s.Position+1, s.Title, s.Status)
			}
		}
		return nil
	},
}

func init() {
	actionCmd.Flags().StringArray("param", nil, "action parameter as key=value; repeatable")
}

// --- journey ---

var journeyCmd = &cobra.Command{
	Use:   "journey",
	Short: "Manage a conversation's project journey",
}

var journeyStartCmd = &cobra.Command{
	Use:   "start <conversation-id>",
	Short: "Start a journey from a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		template, _ := cmd.Flags().GetString("template")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/conversations/"+args[0]+"/journey",
			map[string]string{"template": template})
		if err != nil {
			return err
		}
		return printJourney(resp)
	},
}

var journeyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show the active journey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/conversations/"+args[0]+"/journey")
		if err != nil {
			return err
		}
		return printJourney(resp)
	},
}

var journeyAdvanceCmd = &cobra.Command{
	Use:   "advance <conversation-id>",
	Short: "Complete the current step and move to the next",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/conversations/"+args[0]+"/journey/advance", nil)
		if err != nil {
			return err
		}

		var out struct {
			Status      string `json:"status"`
			CurrentStep *struct {
				Position int    `json:"position"`
				Title    string `json:"title"`
			} `json:"current_step"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if out.Status == "completed" {
			printSuccess("Journey completed")
			return nil
		}
		printSuccess("Now on step %d: %s", out.CurrentStep.Position+1, out.CurrentStep.Title)
		return nil
	},
}

var journeyAbandonCmd = &cobra.Command{
	Use:   "abandon <conversation-id>",
	Short: "Abandon the active journey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/conversations/"+args[0]+"/journey/abandon", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Journey abandoned")
		return nil
	},
}

func printJourney(resp *http.Response) error {
	var j struct {
		Template string `json:"template"`
		Status   string `json:"status"`
		Steps    []struct {
			Position int    `json:"position"`
			Title    string `json:"title"`
			Status   string `json:"status"`
		} `json:"steps"`
	}
	if err := decodeJSON(resp, &j); err != nil {
		return err
	}

	printStatus("Journey", "%s (%s)", j.Template, j.Status)
	for _, s := range j.Steps {
		marker := " "
		switch s.Status {
		case "done":
			marker = colorize(colorGreen, "✓")
		case "in_progress":
			marker = colorize(colorCyan, "→")
		}
		fmt.Printf("  %s %d. %s\n", marker, s.Position+1, s.Title)
	}
	return nil
}

func init() {
	journeyStartCmd.Flags().String("template", "diy_project_plan", "journey template (diy_project_plan, contractor_quotes)")
	journeyCmd.AddCommand(journeyStartCmd)
	journeyCmd.AddCommand(journeyShowCmd)
	journeyCmd.AddCommand(journeyAdvanceCmd)
	journeyCmd.AddCommand(journeyAbandonCmd)
}

// --- fact ---

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Store a home fact in the knowledge base",
	Long: `Store a fact about the home so later turns can retrieve it.

Examples:
  reno fact --text "the living room gets strong afternoon sun" --home home-1 --room living-room
  reno fact --file ./inspection-notes.txt --home home-1 --tags inspection`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		homeID, _ := cmd.Flags().GetString("home")
		roomID, _ := cmd.Flags().GetString("room")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
			if title == "" {
				title = file
			}
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"content": text,
			"title":   title,
			"home_id": homeID,
			"room_id": roomID,
		}
		if tags != nil {
			req["tags"] = tags
		}

		resp, err := client.post(cmd.Context(), "/v1/knowledge", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored fact %s", result["id"])
		return nil
	},
}

func init() {
	factCmd.Flags().String("text", "", "the fact to store")
	factCmd.Flags().String("file", "", "file whose contents to store")
	factCmd.Flags().String("title", "", "short title for the fact")
	factCmd.Flags().String("home", "", "home id scope")
	factCmd.Flags().String("room", "", "room id scope")
	factCmd.Flags().String("tags", "", "comma-separated tags")
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

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
	Short: "Remove a configuration value, reverting to the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
