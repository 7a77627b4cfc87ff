package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/tracking"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage attendance sessions",
	Long: `Start, stop and list attendance sessions in the configured database.
Requires DATABASE_URL or MARIADB_DSN; the in-memory backend only lives inside
a running server.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <class_id>",
	Short: "Start a session now, or schedule it with --at",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStart,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <session_id>",
	Short: "Complete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStop,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE:  runSessionList,
}

var sessionRecordsCmd = &cobra.Command{
	Use:   "records <session_id>",
	Short: "Show the attendance records of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRecords,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionStopCmd, sessionListCmd, sessionRecordsCmd)

	sessionStartCmd.Flags().Int("present", 0, "Present window in minutes (defaults to ATTENDANCE_PRESENT_WINDOW_MINUTES)")
	sessionStartCmd.Flags().Int("late", 0, "Late window in minutes (defaults to ATTENDANCE_LATE_WINDOW_MINUTES)")
	sessionStartCmd.Flags().String("at", "", "Schedule the session for this RFC 3339 time instead of starting it")
	sessionListCmd.Flags().Int("limit", 20, "Maximum number of sessions")
	sessionListCmd.Flags().Bool("json", false, "Output as JSON")
	sessionRecordsCmd.Flags().Bool("json", false, "Output as JSON")
}

// openSessions builds the session service on a persistent backend.
func openSessions(cfg *config.Config) (database.Backend, *attendance.Sessions, error) {
	if cfg.Database.URL == "" && cfg.MariaDB.DSN == "" {
		return nil, nil, errors.New("DATABASE_URL or MARIADB_DSN environment variable is required")
	}
	backend, _, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	tracker := tracking.NewRegistry(cfg.Tracking.TTL(), cfg.Tracking.IoUThreshold, cfg.Tracking.IdleTimeout())
	recorder := attendance.NewRecorder(backend)
	sessions := attendance.NewSessions(backend, tracker, recorder,
		cfg.Attendance.PresentWindowMinutes, cfg.Attendance.LateWindowMinutes)
	return backend, sessions, nil
}

func parseSessionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", arg)
	}
	return id, nil
}

func printSession(s *database.Session) {
	fmt.Printf("Session %d (%s) %s\n", s.ID, s.ClassID, s.Status)
	fmt.Printf("  Start:   %s\n", s.StartTime.Local().Format(time.DateTime))
	if s.EndTime != nil {
		fmt.Printf("  End:     %s\n", s.EndTime.Local().Format(time.DateTime))
	}
	fmt.Printf("  Windows: present %d min, late %d min\n", s.PresentWindowMinutes, s.LateWindowMinutes)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	backend, sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	present := mustGetInt(cmd, "present")
	late := mustGetInt(cmd, "late")

	var s *database.Session
	if at := mustGetString(cmd, "at"); at != "" {
		startAt, perr := time.Parse(time.RFC3339, at)
		if perr != nil {
			return fmt.Errorf("invalid --at time: %w", perr)
		}
		s, err = sessions.Schedule(ctx, args[0], startAt, present, late)
	} else {
		s, err = sessions.Start(ctx, args[0], present, late)
	}
	if err != nil {
		return err
	}
	printSession(s)
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	cfg := config.Load()
	backend, sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	s, err := sessions.Stop(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("session %d not found", id)
	}
	if err != nil {
		return err
	}
	printSession(s)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	backend, sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	list, err := sessions.List(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		if list == nil {
			list = []database.Session{}
		}
		return outputJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	fmt.Printf("%6s  %-16s %-10s %s\n", "ID", "CLASS", "STATUS", "START")
	for _, s := range list {
		fmt.Printf("%6d  %-16s %-10s %s\n", s.ID, s.ClassID, s.Status, s.StartTime.Local().Format(time.DateTime))
	}
	return nil
}

func runSessionRecords(cmd *cobra.Command, args []string) error {
	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	cfg := config.Load()
	backend, sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if _, err := sessions.Get(ctx, id); err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}
	records, err := backend.ListRecords(ctx, id)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		if records == nil {
			records = []database.Record{}
		}
		return outputJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No records yet.")
		return nil
	}
	for _, r := range records {
		flag := ""
		if r.ManualOverride {
			flag = fmt.Sprintf("  (override by %s)", r.OverrideBy)
		}
		fmt.Printf("%-16s %-8s %s  conf %.2f  live %.2f%s\n", r.StudentID, r.Status,
			r.DetectedAt.Local().Format(time.TimeOnly), r.ConfidenceScore, r.LivenessScore, flag)
	}
	return nil
}
