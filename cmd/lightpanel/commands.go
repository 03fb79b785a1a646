package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightpanel/internal/app"
	"github.com/dokzlo13/lightpanel/internal/db"
	"github.com/dokzlo13/lightpanel/internal/hue"
	"github.com/dokzlo13/lightpanel/internal/ledger"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Print the rooms the panel will show",
	Long: `Connect to the bridge, resolve rooms from the configuration (and the bridge,
if hue.discover_rooms is set) and print them in panel order.`,
	RunE: runRooms,
}

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find Hue bridges on the local network",
	Example: `  # Browse for five seconds
  lightpanel discover

  # Browse longer on a slow network
  lightpanel discover --timeout 15s`,
	RunE: runDiscover,
}

var (
	journalLimit   int
	journalSession string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent panel activity",
	Example: `  # Last 20 entries
  lightpanel journal

  # Everything recorded for one panel session
  lightpanel journal --session 6f1c1b1e-8d0a-4c55-9f5e-2b4a8f0d9c11`,
	RunE: runJournal,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Second, "How long to browse for bridges")

	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "Number of entries to show")
	journalCmd.Flags().StringVar(&journalSession, "session", "", "Show only entries of this session")
}

func runRooms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Hue.DiscoveryTimeout.Duration()+cfg.Hue.Timeout.Duration()*2)
	defer cancel()

	svc, err := app.NewHueService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tLIGHTS\tCONTROLS")
	for _, room := range svc.Rooms.RoomIDs() {
		ids := lo.Map(svc.Rooms.DevicesOf(room), func(id int, _ int) string { return fmt.Sprint(id) })
		fmt.Fprintf(w, "%s\t%s\t%s\n", room, strings.Join(ids, ","), lo.Ternary(svc.Rooms.IsColor(room), "colour", "temperature"))
	}
	return w.Flush()
}

func runDiscover(cmd *cobra.Command, args []string) error {
	bridges, err := hue.Discover(cmd.Context(), discoverTimeout)
	if err != nil {
		return err
	}
	if len(bridges) == 0 {
		fmt.Println("No bridges found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS")
	for _, b := range bridges {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Name, b.Address)
	}
	return w.Flush()
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	journal := ledger.New(database.DB)

	var entries []*ledger.Entry
	if journalSession != "" {
		entries, err = journal.BySession(cmd.Context(), journalSession)
	} else {
		entries, err = journal.Recent(cmd.Context(), journalLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tCHAT\tSESSION\tDETAILS")
	for _, e := range entries {
		details, _ := json.Marshal(e.Payload)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.EventType, e.ChatID, e.SessionID, details)
	}
	return w.Flush()
}
