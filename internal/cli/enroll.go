package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/models"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> [image]",
	Short: "Enroll an identity from an image or the camera",
	Long: `Enroll an identity. Without an image argument a still is captured from the
configured camera. An image without a detectable face is still enrolled, but
cannot be matched until it is re-enrolled.

Example:
  facectl enroll acc-1042 ana.jpg --name "Ana Pérez" --phone 555-0100
  facectl enroll acc-1042 --name "Ana Pérez" --mode merge_flags --verified`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEnroll,
}

var importCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Enroll every record listed in a YAML manifest",
	Long: `Enroll records in bulk. Image paths are relative to the manifest.

Manifest format:
  records:
    - identity: acc-1042
      full_name: Ana Pérez
      phone: 555-0100
      image: photos/ana.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(enrollCmd, importCmd)

	enrollCmd.Flags().String("name", "", "Full name (required)")
	enrollCmd.Flags().String("phone", "", "Phone number")
	enrollCmd.Flags().String("address", "", "Postal address")
	enrollCmd.Flags().String("operator", os.Getenv("USER"), "Operator recorded as the enroller")
	enrollCmd.Flags().String("mode", string(models.EnrollReplace), "How to combine with an existing record: replace or merge_flags")
	enrollCmd.Flags().Bool("verified", false, "Set the verified flag")
	enrollCmd.Flags().Bool("suspended", false, "Set the suspended flag")
	_ = enrollCmd.MarkFlagRequired("name")

	importCmd.Flags().String("mode", string(models.EnrollReplace), "How to combine with existing records: replace or merge_flags")
	importCmd.Flags().String("operator", os.Getenv("USER"), "Operator recorded as the enroller")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	mode, err := models.ParseEnrollMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	var imagePath string
	if len(args) == 2 {
		imagePath = args[1]
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	img, err := a.loadImage(ctx, imagePath)
	if err != nil {
		return err
	}

	res, err := a.svc.Enroll(ctx, enroll.EnrollRequest{
		Session:    a.session,
		Identity:   args[0],
		FullName:   mustGetString(cmd, "name"),
		Phone:      mustGetString(cmd, "phone"),
		Address:    mustGetString(cmd, "address"),
		EnrolledBy: mustGetString(cmd, "operator"),
		Flags: models.RecordFlags{
			Verified:  mustGetBool(cmd, "verified"),
			Suspended: mustGetBool(cmd, "suspended"),
		},
		Mode:  mode,
		Image: img,
	})
	if err != nil {
		return err
	}

	if !res.FaceDetected {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: no face detected, record saved without a descriptor")
	}
	return printRecord(cmd.OutOrStdout(), res.Record)
}

// ManifestEntry is one record of an import manifest.
type ManifestEntry struct {
	Identity string `yaml:"identity"`
	FullName string `yaml:"full_name"`
	Phone    string `yaml:"phone"`
	Address  string `yaml:"address"`
	Image    string `yaml:"image"`
}

type manifest struct {
	Records []ManifestEntry `yaml:"records"`
}

// ParseManifest decodes a manifest and resolves image paths against baseDir.
func ParseManifest(data []byte, baseDir string) ([]ManifestEntry, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	seen := make(map[string]int, len(m.Records))
	for i := range m.Records {
		e := &m.Records[i]
		if e.Identity == "" || e.FullName == "" || e.Image == "" {
			return nil, fmt.Errorf("manifest entry %d: identity, full_name and image are required", i+1)
		}
		if prev, dup := seen[e.Identity]; dup {
			return nil, fmt.Errorf("manifest entry %d: identity %q already listed at entry %d", i+1, e.Identity, prev)
		}
		seen[e.Identity] = i + 1
		if !filepath.IsAbs(e.Image) {
			e.Image = filepath.Join(baseDir, e.Image)
		}
	}
	return m.Records, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	mode, err := models.ParseEnrollMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	entries, err := ParseManifest(data, filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Manifest lists no records.")
		return nil
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Fprintf(out, "Enrolling %d record(s)\n", len(entries))
	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var (
		failures []string
		noFace   []string
		enrolled int
	)
	operator := mustGetString(cmd, "operator")
	for _, e := range entries {
		img, err := a.loadImage(ctx, e.Image)
		if err == nil {
			var res *enroll.EnrollResult
			res, err = a.svc.Enroll(ctx, enroll.EnrollRequest{
				Session:    a.session,
				Identity:   e.Identity,
				FullName:   e.FullName,
				Phone:      e.Phone,
				Address:    e.Address,
				EnrolledBy: operator,
				Mode:       mode,
				Image:      img,
			})
			if err == nil {
				enrolled++
				if !res.FaceDetected {
					noFace = append(noFace, e.Identity)
				}
			}
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", e.Identity, err))
		}
		_ = bar.Add(1)
	}
	fmt.Fprintln(cmd.ErrOrStderr())

	for _, msg := range failures {
		fmt.Fprintf(out, "Failed: %s\n", msg)
	}
	for _, id := range noFace {
		fmt.Fprintf(out, "No face: %s\n", id)
	}
	fmt.Fprintf(out, "\nDone! Enrolled %d of %d record(s)\n", enrolled, len(entries))
	if enrolled == 0 {
		return fmt.Errorf("no records were enrolled")
	}
	return nil
}
