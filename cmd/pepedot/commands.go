package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njagatron/PEPE-DOT/internal/config"
)

// confirmName prompts the operator to retype the exact record name before a
// destructive delete. The --confirm flag short-circuits the prompt for
// scripted use.
func confirmName(cmd *cobra.Command, kind, name string) (string, error) {
	if v, _ := cmd.Flags().GetString("confirm"); v != "" {
		return v, nil
	}
	fmt.Fprintf(os.Stderr, "Deleting %s %q and everything it contains.\nRetype the name to confirm: ", kind, name)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type stateView struct {
	Name                string `json:"name"`
	ActiveDocumentIndex int    `json:"active_document_index"`
	ActivePage          int    `json:"active_page"`
	PointCount          int    `json:"point_count"`
	Documents           []struct {
		Index     int    `json:"index"`
		Name      string `json:"name"`
		PageCount int    `json:"page_count"`
	} `json:"documents"`
}

func printState(view stateView) {
	for _, d := range view.Documents {
		marker := "  "
		if d.Index == view.ActiveDocumentIndex {
			marker = colorize(colorCyan, "» ")
		}
		fmt.Printf("%s[%d] %s (%d pages)\n", marker, d.Index, d.Name, d.PageCount)
	}
	if view.ActiveDocumentIndex >= 0 {
		fmt.Printf("  page %d, %d points\n", view.ActivePage, view.PointCount)
	} else {
		fmt.Printf("  no documents, %d points\n", view.PointCount)
	}
}

// --- rn: work orders ---

var rnCmd = &cobra.Command{
	Use:   "rn",
	Short: "Manage work order records",
}

var rnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work orders in stored order",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/workorders")
		if err != nil {
			return err
		}
		var names []string
		if err := decodeJSON(resp, &names); err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No work orders.")
			return nil
		}
		activeResp, err := client.get(cmd.Context(), "/active")
		active := ""
		if err == nil {
			var a map[string]string
			if decodeJSON(activeResp, &a) == nil {
				active = a["name"]
			}
		}
		for _, name := range names {
			if name == active {
				fmt.Printf("%s %s\n", colorize(colorCyan, "»"), colorize(colorBold, name))
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil
	},
}

var rnCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new work order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/workorders", map[string]string{"name": args[0]})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Created work order %s", args[0])
		return nil
	},
}

var rnOpenCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Open a work order and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/workorders/"+args[0])
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Opened %s", args[0])
		printState(view)
		return nil
	},
}

var rnRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a work order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/workorders/"+args[0], map[string]string{"new_name": args[1]})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Renamed %s to %s", args[0], args[1])
		return nil
	},
}

var rnDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a work order and all its documents and points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, err := confirmName(cmd, "work order", args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/workorders/"+args[0], map[string]string{"confirm": confirm})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted work order %s", args[0])
		return nil
	},
}

func init() {
	rnDeleteCmd.Flags().String("confirm", "", "exact record name, skips the interactive prompt")
	rnCmd.AddCommand(rnListCmd)
	rnCmd.AddCommand(rnCreateCmd)
	rnCmd.AddCommand(rnOpenCmd)
	rnCmd.AddCommand(rnRenameCmd)
	rnCmd.AddCommand(rnDeleteCmd)
}

// --- doc: plan documents ---

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage a work order's plan documents",
}

var docAddCmd = &cobra.Command{
	Use:   "add <order> <pdf-file>",
	Short: "Upload a plan PDF into a work order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, path := args[0], args[1]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading plan file: %w", err)
		}
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = filepath.Base(path)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/workorders/"+order+"/documents", map[string]string{
			"name":    name,
			"content": base64.StdEncoding.EncodeToString(data),
		})
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Added %s to %s", name, order)
		printState(view)
		return nil
	},
}

var docSelectCmd = &cobra.Command{
	Use:   "select <order> <index>",
	Short: "Make the document at index active",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/workorders/%s/documents/%d/select", args[0], idx), nil)
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printState(view)
		return nil
	},
}

var docRenameCmd = &cobra.Command{
	Use:   "rename <order> <index> <new-name>",
	Short: "Rename the document at index",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), fmt.Sprintf("/workorders/%s/documents/%d", args[0], idx),
			map[string]string{"new_name": args[2]})
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Renamed document %d to %s", idx, args[2])
		return nil
	},
}

var docRemoveCmd = &cobra.Command{
	Use:   "remove <order> <index>",
	Short: "Remove the document at index together with its points",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		// Look up the document's name for the confirmation prompt.
		resp, err := client.get(cmd.Context(), "/workorders/"+args[0])
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		if idx < 0 || idx >= len(view.Documents) {
			return fmt.Errorf("document %d of %d", idx, len(view.Documents))
		}
		docName := view.Documents[idx].Name

		confirm, err := confirmName(cmd, "document", docName)
		if err != nil {
			return err
		}
		resp, err = client.delete(cmd.Context(), fmt.Sprintf("/workorders/%s/documents/%d", args[0], idx),
			map[string]string{"confirm": confirm})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Removed document %s", docName)
		printState(view)
		return nil
	},
}

var docPageCmd = &cobra.Command{
	Use:   "page <order> <next|prev>",
	Short: "Move the active document's page cursor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := 0
		switch args[1] {
		case "next":
			direction = 1
		case "prev":
			direction = -1
		default:
			return fmt.Errorf("direction must be next or prev, got %q", args[1])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/workorders/"+args[0]+"/page", map[string]int{"direction": direction})
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printState(view)
		return nil
	},
}

func init() {
	docAddCmd.Flags().String("name", "", "display name (default: file base name)")
	docRemoveCmd.Flags().String("confirm", "", "exact document name, skips the interactive prompt")
	docCmd.AddCommand(docAddCmd)
	docCmd.AddCommand(docSelectCmd)
	docCmd.AddCommand(docRenameCmd)
	docCmd.AddCommand(docRemoveCmd)
	docCmd.AddCommand(docPageCmd)
}

// --- point: annotation ledger ---

var pointCmd = &cobra.Command{
	Use:   "point",
	Short: "Manage a work order's annotation points",
}

var pointAddCmd = &cobra.Command{
	Use:   "add <order> <photo-file>",
	Short: "Add a photo-tagged point at document coordinates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, photoPath := args[0], args[1]
		photo, err := os.ReadFile(photoPath)
		if err != nil {
			return fmt.Errorf("reading photo: %w", err)
		}

		name, _ := cmd.Flags().GetString("name")
		comment, _ := cmd.Flags().GetString("comment")
		x, _ := cmd.Flags().GetFloat64("x")
		y, _ := cmd.Flags().GetFloat64("y")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/workorders/"+order+"/points", map[string]any{
			"base_name":     name,
			"comment":       comment,
			"image":         base64.StdEncoding.EncodeToString(photo),
			"original_name": filepath.Base(photoPath),
			"source":        "gallery",
			"x":             x,
			"y":             y,
		})
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Added point (%g, %g) to %s", x, y, order)
		return nil
	},
}

var pointListCmd = &cobra.Command{
	Use:   "list <order>",
	Short: "List annotation points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		page, _ := cmd.Flags().GetInt("page")
		document, _ := cmd.Flags().GetInt("document")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/workorders/%s/points?all_sessions=%t&document=%d&page=%d",
			args[0], all, document, page)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var points []struct {
			Index        int     `json:"index"`
			Name         string  `json:"name"`
			Comment      string  `json:"comment"`
			X            float64 `json:"x"`
			Y            float64 `json:"y"`
			Page         int     `json:"page"`
			DocumentName string  `json:"document_name"`
			CreatedAt    string  `json:"created_at"`
		}
		if err := decodeJSON(resp, &points); err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Println("No points.")
			return nil
		}
		for _, p := range points {
			line := fmt.Sprintf("[%d] %s  (%.1f, %.1f)  %s p.%d", p.Index, colorize(colorBold, p.Name), p.X, p.Y, p.DocumentName, p.Page)
			if p.Comment != "" {
				line += "  — " + p.Comment
			}
			fmt.Println(line)
		}
		return nil
	},
}

var pointEditCmd = &cobra.Command{
	Use:   "edit <order> <index>",
	Short: "Edit a point's name or comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		body := map[string]any{}
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			body["name"] = name
		}
		if cmd.Flags().Changed("comment") {
			comment, _ := cmd.Flags().GetString("comment")
			body["comment"] = comment
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to change, pass --name or --comment")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), fmt.Sprintf("/workorders/%s/points/%d", args[0], idx), body)
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Updated point %d", idx)
		return nil
	},
}

var pointRemoveCmd = &cobra.Command{
	Use:   "remove <order> <index>",
	Short: "Remove the point at index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), fmt.Sprintf("/workorders/%s/points/%d", args[0], idx), nil)
		if err != nil {
			return err
		}
		var view stateView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Removed point %d", idx)
		return nil
	},
}

func init() {
	pointAddCmd.Flags().String("name", "", "point base name (date suffix is appended)")
	pointAddCmd.Flags().String("comment", "", "free-form comment")
	pointAddCmd.Flags().Float64("x", 0, "x in document coordinates")
	pointAddCmd.Flags().Float64("y", 0, "y in document coordinates")
	pointListCmd.Flags().Bool("all", false, "include points from earlier sessions")
	pointListCmd.Flags().Int("page", 0, "restrict to one page (0 = all)")
	pointListCmd.Flags().Int("document", -1, "restrict to one document position (-1 = all)")
	pointEditCmd.Flags().String("name", "", "new point name")
	pointEditCmd.Flags().String("comment", "", "new comment")
	pointCmd.AddCommand(pointAddCmd)
	pointCmd.AddCommand(pointListCmd)
	pointCmd.AddCommand(pointEditCmd)
	pointCmd.AddCommand(pointRemoveCmd)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <order>",
	Short: "Export a work order's point ledger as an xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		detailed, _ := cmd.Flags().GetBool("detailed")
		all, _ := cmd.Flags().GetBool("all")
		if output == "" {
			output = args[0] + "-points.xlsx"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/workorders/%s/points/export?detailed=%t&all_sessions=%t", args[0], detailed, all)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("Exported point list to %s", output)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: <order>-points.xlsx)")
	exportCmd.Flags().Bool("detailed", false, "include comment, coordinates, page, and document columns")
	exportCmd.Flags().Bool("all", false, "include points from earlier sessions")
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
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
