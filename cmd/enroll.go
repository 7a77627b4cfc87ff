package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [image]",
	Short: "Add students to the known face database",
	Long: `Enroll a single image for one student, or import a whole dataset.

A dataset directory holds one folder per student named <student_id>_<name>,
each with any number of .jpg/.jpeg/.png images.

Examples:
  # Enroll one image
  rollcall enroll photo.jpg --student-id s-104 --name "Jana Novakova"

  # Import a dataset with 8 workers
  rollcall enroll --dir ./dataset --concurrency 8

  # Replace a student's samples instead of adding to them
  rollcall enroll photo.jpg --student-id s-104 --name "Jana Novakova" --replace`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("student-id", "", "Student ID for a single image")
	enrollCmd.Flags().String("name", "", "Student name for a single image")
	enrollCmd.Flags().String("dir", "", "Dataset directory of <student_id>_<name> folders")
	enrollCmd.Flags().Int("concurrency", constants.EnrollWorkers, "Number of parallel workers for --dir")
	enrollCmd.Flags().Bool("replace", false, "Remove existing samples of each enrolled student first")
}

// datasetImage is one image of a dataset import.
type datasetImage struct {
	StudentID string
	Name      string
	Path      string
}

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// scanDataset lists the images of a <student_id>_<name> folder tree.
func scanDataset(dir string) ([]datasetImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset directory: %w", err)
	}
	var out []datasetImage
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		studentID, name, ok := facematch.SplitStudentFolder(entry.Name())
		if !ok {
			fmt.Printf("Skipping %s: folder name is not <student_id>_<name>\n", entry.Name())
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(f.Name()))) {
				continue
			}
			out = append(out, datasetImage{
				StudentID: studentID,
				Name:      name,
				Path:      filepath.Join(dir, entry.Name(), f.Name()),
			})
		}
	}
	return out, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	replace := mustGetBool(cmd, "replace")

	var images []datasetImage
	switch {
	case dir != "" && len(args) > 0:
		return errors.New("use either an image argument or --dir, not both")
	case dir != "":
		found, err := scanDataset(dir)
		if err != nil {
			return err
		}
		images = found
	case len(args) == 1:
		studentID := strings.TrimSpace(mustGetString(cmd, "student-id"))
		name := facematch.CleanStudentName(mustGetString(cmd, "name"))
		if studentID == "" || name == "" {
			return errors.New("--student-id and --name are required for a single image")
		}
		images = []datasetImage{{StudentID: studentID, Name: name, Path: args[0]}}
	default:
		return errors.New("an image argument or --dir is required")
	}
	if len(images) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	ctx := context.Background()
	cfg := config.Load()
	vision := visionClient(cfg)
	engine := newEngine(cfg, vision)
	enrollerCfg := recognition.EnrollerConfig{
		DuplicateDistance: cfg.Recognition.DuplicateDistance,
		CropPadding:       cfg.Tracking.CropPadding,
	}
	if vision != nil {
		enrollerCfg.Detector = vision
	}
	enroller := recognition.NewEnroller(ctx, engine, enrollerCfg)
	fmt.Printf("Face database: %s (%d samples)\n", cfg.Faces.DatabasePath, engine.Store(ctx).Len())

	if replace {
		seen := make(map[string]bool)
		for _, img := range images {
			if !seen[img.StudentID] {
				seen[img.StudentID] = true
				if n := enroller.Remove(ctx, img.StudentID); n > 0 {
					fmt.Printf("Removed %d existing samples of %s\n", n, img.StudentID)
				}
			}
		}
	}

	if len(images) == 1 {
		return enrollOne(ctx, enroller, images[0])
	}
	return enrollDataset(ctx, enroller, images, mustGetInt(cmd, "concurrency"))
}

func enrollOne(ctx context.Context, enroller *recognition.Enroller, img datasetImage) error {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	result, err := enroller.Enroll(ctx, img.StudentID, img.Name, data, filepath.Base(img.Path))
	if err != nil {
		return fmt.Errorf("enrolling %s: %w", img.Path, err)
	}
	if err := enroller.Save(ctx); err != nil {
		return fmt.Errorf("saving face database: %w", err)
	}
	fmt.Printf("Enrolled %s (%s): %d-dim %s embedding\n", result.Name, result.StudentID, result.Dim, result.Extractor)
	if result.Duplicate != nil {
		fmt.Printf("Warning: close to %s (%s), distance %.3f\n",
			result.Duplicate.Name, result.Duplicate.StudentID, result.Duplicate.Distance)
	}
	return nil
}

func enrollDataset(ctx context.Context, enroller *recognition.Enroller, images []datasetImage, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	fmt.Printf("Images to enroll: %d\n\n", len(images))

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, errorCount int
	var failures, duplicates []string
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, img := range images {
		wg.Add(1)
		go func(img datasetImage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			data, err := os.ReadFile(img.Path)
			if err == nil {
				var result *recognition.EnrollResult
				result, err = enroller.Enroll(ctx, img.StudentID, img.Name, data, filepath.Base(img.Path))
				if err == nil && result.Duplicate != nil {
					mu.Lock()
					duplicates = append(duplicates, fmt.Sprintf("%s ~ %s (%.3f)",
						img.Path, result.Duplicate.StudentID, result.Duplicate.Distance))
					mu.Unlock()
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errorCount++
				failures = append(failures, fmt.Sprintf("%s: %v", img.Path, err))
				return
			}
			successCount++
			// Checkpoint so an interrupted import keeps its progress.
			if successCount%constants.EnrollSaveInterval == 0 {
				if err := enroller.Save(ctx); err != nil {
					failures = append(failures, fmt.Sprintf("checkpoint save: %v", err))
				}
			}
		}(img)
	}

	wg.Wait()
	fmt.Println()

	if err := enroller.Save(ctx); err != nil {
		return fmt.Errorf("saving face database: %w", err)
	}

	slices.Sort(failures)
	for _, f := range failures {
		fmt.Printf("  ERROR %s\n", f)
	}
	slices.Sort(duplicates)
	for _, d := range duplicates {
		fmt.Printf("  near duplicate %s\n", d)
	}
	fmt.Printf("\nCompleted: %d enrolled, %d errors, %d near duplicates\n", successCount, errorCount, len(duplicates))
	return nil
}
