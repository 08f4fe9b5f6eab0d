// Package main is the entry point for the gateway admin CLI.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/config"
	"github.com/pgcrud/pgcrud/internal/surface"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	secret      string
	databaseURL string
	output      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pgcrud-admin",
		Short: "Admin CLI for the pgcrud gateway",
		Long:  `A command-line tool for minting and inspecting API tokens and examining the exposed database schema.`,
	}

	rootCmd.PersistentFlags().StringVarP(&secret, "secret", "s", os.Getenv("PGCRUD_AUTH_SECRET"), "Token signing secret (defaults to PGCRUD_AUTH_SECRET)")
	rootCmd.PersistentFlags().StringVarP(&databaseURL, "database-url", "d", os.Getenv("PGCRUD_DATABASE_URL"), "Database connection URL (defaults to PGCRUD_DATABASE_URL)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")

	// Token commands
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	tokenCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Mint a new API token",
		RunE:  createToken,
	}
	tokenCreateCmd.Flags().String("label", "", "Token label (defaults to a random UUID)")
	tokenCreateCmd.Flags().StringArray("namespace", nil, "Namespace claim as ns:mode, e.g. public:rw or reporting:r (repeatable)")
	tokenCreateCmd.Flags().Bool("full-access", false, "Mint a token with access to every namespace")

	tokenInspectCmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a token and show its claims",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectToken,
	}

	tokenCmd.AddCommand(tokenCreateCmd, tokenInspectCmd)

	// Schema commands
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Examine the exposed database schema",
	}

	schemaDumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Introspect the database and print the full model",
		RunE:  dumpSchema,
	}

	schemaHashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Introspect the database and print the model digest",
		RunE:  hashSchema,
	}

	schemaCmd.AddCommand(schemaDumpCmd, schemaHashCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pgcrud-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}

	rootCmd.AddCommand(tokenCmd, schemaCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireSecret() error {
	if secret == "" {
		return fmt.Errorf("a signing secret is required: pass --secret or set PGCRUD_AUTH_SECRET")
	}
	return nil
}

func createToken(cmd *cobra.Command, args []string) error {
	if err := requireSecret(); err != nil {
		return err
	}

	label, _ := cmd.Flags().GetString("label")
	if label == "" {
		label = uuid.NewString()
	}
	fullAccess, _ := cmd.Flags().GetBool("full-access")
	namespaces, _ := cmd.Flags().GetStringArray("namespace")

	var claims auth.Claims
	if !fullAccess {
		if len(namespaces) == 0 {
			return fmt.Errorf("pass at least one --namespace ns:mode claim, or --full-access")
		}
		claims = auth.Claims{}
		for _, raw := range namespaces {
			ns, mode, ok := strings.Cut(raw, ":")
			if !ok || ns == "" || mode == "" {
				return fmt.Errorf("invalid namespace claim %q: expected ns:mode", raw)
			}
			claims[ns] = mode
		}
	}

	token, err := auth.Mint([]byte(secret), label, claims)
	if err != nil {
		return err
	}

	if output == "json" {
		return printJSON(map[string]any{
			"label":  label,
			"claims": claims,
			"token":  token,
		})
	}

	fmt.Printf("Token minted. Store it now: the secret material is not recoverable.\n\n")
	fmt.Printf("  %s\n\n", token)
	fmt.Printf("Label: %s\n", label)
	if claims == nil {
		fmt.Println("Access: full")
	} else {
		printClaims(claims)
	}
	return nil
}

func inspectToken(cmd *cobra.Command, args []string) error {
	if err := requireSecret(); err != nil {
		return err
	}

	tok, err := auth.Verify([]byte(secret), args[0])
	if err != nil {
		return fmt.Errorf("token is not valid under this secret")
	}

	if output == "json" {
		return printJSON(map[string]any{
			"label":       tok.Label,
			"claims":      tok.Claims,
			"full_access": tok.FullAccess(),
		})
	}

	fmt.Printf("Label: %s\n", tok.Label)
	if tok.FullAccess() {
		fmt.Println("Access: full")
	} else {
		printClaims(tok.Claims)
	}
	return nil
}

func printClaims(claims auth.Claims) {
	namespaces := make([]string, 0, len(claims))
	for ns := range claims {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tMODE")
	for _, ns := range namespaces {
		fmt.Fprintf(w, "%s\t%s\n", ns, claims[ns])
	}
	w.Flush()
}

func introspect() (*catalog.Model, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("a database URL is required: pass --database-url or set PGCRUD_DATABASE_URL")
	}

	db, err := sql.Open("postgres", config.StripJDBC(databaseURL))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	return catalog.Introspect(ctx, db, catalog.Options{})
}

func dumpSchema(cmd *cobra.Command, args []string) error {
	model, err := introspect()
	if err != nil {
		return err
	}

	if output == "json" {
		cfg := config.DefaultConfig()
		return printJSON(surface.Dump(model, nil, cfg))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROUTE\tCOLUMNS\tPRIMARY KEY")
	for _, e := range model.SortedEntities() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			e.FullName(), e.RouteSegment(), len(e.Columns), strings.Join(e.PrimaryKey, ","))
	}
	return w.Flush()
}

func hashSchema(cmd *cobra.Command, args []string) error {
	model, err := introspect()
	if err != nil {
		return err
	}
	fmt.Println(model.Hash())
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
