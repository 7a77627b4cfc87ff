package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/recognition"
	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Inspect and maintain the known face database",
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled students",
	RunE:  runFacesList,
}

var facesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report students whose samples look alike",
	Long: `Report pairs of different students with samples closer than the
duplicate distance. Such pairs are likely mislabeled or need more samples.`,
	RunE: runFacesCheck,
}

var facesRemoveCmd = &cobra.Command{
	Use:   "remove <student_id>",
	Short: "Remove every sample of a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesRemove,
}

var facesPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Mirror the face database into PostgreSQL",
	Long: `Copy every sample of the local face database into the known_identities
table. The table is replaced as a whole. Requires DATABASE_URL.`,
	RunE: runFacesPush,
}

var facesPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Rebuild the face database from PostgreSQL",
	Long: `Replace the local face database with the samples mirrored in
PostgreSQL. Requires DATABASE_URL.`,
	RunE: runFacesPull,
}

var facesIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Export the HNSW duplicate-check index",
	Long:  `Build the HNSW identity index from the face database and save it to FACE_INDEX_PATH.`,
	RunE:  runFacesIndex,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesListCmd, facesCheckCmd, facesRemoveCmd, facesPushCmd, facesPullCmd, facesIndexCmd)

	facesListCmd.Flags().String("name", "", "Only list students with this name (accents and case ignored)")
	facesListCmd.Flags().Bool("json", false, "Output as JSON")
	facesCheckCmd.Flags().Float64("distance", 0, "Cosine distance threshold (defaults to RECOGNITION_DUPLICATE_DISTANCE)")
	facesCheckCmd.Flags().Bool("json", false, "Output as JSON")
	facesPullCmd.Flags().Bool("dry-run", false, "Show what would be pulled without writing the face database")
}

func openStore(cfg *config.Config) *recognition.Store {
	return recognition.OpenStore(cfg.Faces.DatabasePath)
}

func runFacesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	store := openStore(cfg)

	students := store.Students()
	if name := strings.TrimSpace(mustGetString(cmd, "name")); name != "" {
		matches := make(map[string]bool)
		for _, ident := range store.FindByName(name) {
			matches[ident.ID] = true
		}
		filtered := students[:0]
		for _, s := range students {
			if matches[s.ID] {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}

	if mustGetBool(cmd, "json") {
		if students == nil {
			students = []recognition.Student{}
		}
		return outputJSON(students)
	}

	if len(students) == 0 {
		fmt.Println("No students enrolled.")
		return nil
	}
	fmt.Printf("%-16s %-32s %8s  %s\n", "STUDENT", "NAME", "SAMPLES", "DIMS")
	for _, s := range students {
		fmt.Printf("%-16s %-32s %8d  %v\n", s.ID, s.Name, s.Samples, s.Dimensions)
	}
	fmt.Printf("\n%d students, %d samples\n", len(students), store.Len())
	return nil
}

func runFacesCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	distance := mustGetFloat64(cmd, "distance")
	if distance <= 0 {
		distance = cfg.Recognition.DuplicateDistance
	}

	pairs := recognition.FindDuplicates(openStore(cfg), distance)
	if mustGetBool(cmd, "json") {
		if pairs == nil {
			pairs = []recognition.DuplicatePair{}
		}
		return outputJSON(pairs)
	}

	if len(pairs) == 0 {
		fmt.Printf("No students within cosine distance %.3f of each other.\n", distance)
		return nil
	}
	for _, p := range pairs {
		fmt.Printf("%s (%s) ~ %s (%s): %.4f\n", p.Name, p.StudentID, p.Other.Name, p.Other.StudentID, p.Other.Distance)
	}
	fmt.Printf("\n%d suspicious pairs\n", len(pairs))
	return nil
}

func runFacesRemove(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	store := openStore(cfg)

	n := store.Remove(args[0])
	if n == 0 {
		return fmt.Errorf("student %s is not enrolled", args[0])
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("saving face database: %w", err)
	}
	fmt.Printf("Removed %d samples of %s\n", n, args[0])
	return nil
}

// openIdentityMirror connects to PostgreSQL for the face database mirror.
func openIdentityMirror(cfg *config.Config) (*postgres.Backend, *postgres.IdentityRepository, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	backend, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return backend, postgres.NewIdentityRepository(backend.Pool()), nil
}

func runFacesPush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	store := openStore(cfg)
	if store.Len() == 0 {
		return fmt.Errorf("face database %s is empty", cfg.Faces.DatabasePath)
	}

	backend, repo, err := openIdentityMirror(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := repo.ReplaceIdentities(ctx, store.ToStored()); err != nil {
		return fmt.Errorf("pushing identities: %w", err)
	}
	count, err := repo.CountIdentities(ctx)
	if err != nil {
		return fmt.Errorf("counting identities: %w", err)
	}
	fmt.Printf("Pushed %d samples, PostgreSQL mirror now holds %d\n", store.Len(), count)
	return nil
}

func runFacesPull(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	backend, repo, err := openIdentityMirror(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	stored, err := repo.ListIdentities(ctx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return errors.New("PostgreSQL mirror is empty, refusing to overwrite the face database")
	}
	if mustGetBool(cmd, "dry-run") {
		fmt.Printf("Would pull %d samples into %s\n", len(stored), cfg.Faces.DatabasePath)
		return nil
	}

	store := recognition.NewStore(cfg.Faces.DatabasePath)
	store.Replace(stored)
	if err := store.Save(); err != nil {
		return fmt.Errorf("saving face database: %w", err)
	}
	fmt.Printf("Pulled %d samples into %s\n", store.Len(), cfg.Faces.DatabasePath)
	return nil
}

func runFacesIndex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Faces.IndexPath == "" {
		return errors.New("FACE_INDEX_PATH environment variable is required")
	}

	index := database.NewIdentityIndex()
	index.Build(openStore(cfg).ToStored())
	if err := index.Save(cfg.Faces.IndexPath); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}

	loaded := database.NewIdentityIndex()
	if err := loaded.Load(cfg.Faces.IndexPath); err != nil {
		return fmt.Errorf("verifying index: %w", err)
	}
	fmt.Printf("Saved HNSW index with %d samples (dims %v) to %s\n",
		loaded.Count(), loaded.Dimensions(), cfg.Faces.IndexPath)
	return nil
}
