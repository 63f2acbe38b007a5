package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/state"
	"github.com/user/telerpg/internal/types"
)

func init() {
	rootCmd.AddCommand(playerCmd)
	playerCmd.AddCommand(playerListCmd, playerShowCmd, playerJournalCmd)

	playerJournalCmd.Flags().Int("limit", 20, "number of entries to show")
}

var playerCmd = &cobra.Command{
	Use:   "player",
	Short: "Manage players",
}

func openStores(ctx context.Context) (*state.Stores, error) {
	cfg := loadConfig()
	return state.Open(ctx, cfg.DataDir, cfg.Database.URL)
}

var playerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all players",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stores, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("open stores: %w", err)
		}
		defer stores.Close()

		players, err := stores.Players.List(ctx)
		if err != nil {
			return fmt.Errorf("list players: %w", err)
		}

		if len(players) == 0 {
			fmt.Println("No players found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SUBJECT\tNAME\tCLASS\tLEVEL\tSTATUS\tAREA\tCREATED")
		for _, p := range players {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				p.SubjectID,
				p.Name,
				p.Class,
				p.Level,
				p.Status,
				areaName(p.CurrentAreaID),
				p.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var playerShowCmd = &cobra.Command{
	Use:   "show <subject>",
	Short: "Show a player's full record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stores, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("open stores: %w", err)
		}
		defer stores.Close()

		p, err := stores.Players.GetBySubject(ctx, types.SubjectID(args[0]))
		if err != nil {
			return fmt.Errorf("get player: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Name:     %s (%s, level %d)\n", p.Name, p.Class, p.Level)
		fmt.Fprintf(os.Stdout, "Subject:  %s\n", p.SubjectID)
		fmt.Fprintf(os.Stdout, "Status:   %s\n", p.Status)
		fmt.Fprintf(os.Stdout, "Area:     %s\n", areaName(p.CurrentAreaID))
		fmt.Fprintf(os.Stdout, "HP:       %d/%d\n", p.HP, p.MaxHP)
		fmt.Fprintf(os.Stdout, "MP:       %d/%d\n", p.MP, p.MaxMP)
		fmt.Fprintf(os.Stdout, "Attack:   %d\n", p.Attack)
		fmt.Fprintf(os.Stdout, "Defense:  %d\n", p.Defense)
		fmt.Fprintf(os.Stdout, "Stats:    Str %d / Int %d / Dex %d / Con %d\n",
			p.Strength, p.Intelligence, p.Dexterity, p.Constitution)
		fmt.Fprintf(os.Stdout, "Currency: %d\n", p.Currency)
		if len(p.Inventory) > 0 {
			fmt.Fprintln(os.Stdout, "Inventory:")
			for _, it := range p.Inventory {
				fmt.Fprintf(os.Stdout, "  %dx %s\n", it.Quantity, game.ItemName(it.ItemID))
			}
		}
		return nil
	},
}

var playerJournalCmd = &cobra.Command{
	Use:   "journal <subject>",
	Short: "Show a player's recent activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		stores, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("open stores: %w", err)
		}
		defer stores.Close()

		entries, err := stores.Journal.Tail(ctx, types.SubjectID(args[0]), limit)
		if err != nil {
			return fmt.Errorf("tail journal: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No journal entries.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tAT\tTYPE")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\n", e.Seq, e.At.Format("2006-01-02 15:04:05"), e.Type)
		}
		return w.Flush()
	},
}

func areaName(id int) string {
	if a, ok := game.AreaByID(id); ok {
		return a.Name
	}
	return fmt.Sprintf("area %d", id)
}
