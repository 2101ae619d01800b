package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-gsea/internal/geneset"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download MSigDB gene-set collections",
		Long: `Download MSigDB gene-set collections (GMT, gene symbols) for one organism.
Files are stored in ~/.vibe-gsea/<organism>/ and picked up by 'vibe-gsea run'.`,
		Example: `  # GO and KEGG for human (default)
  vibe-gsea download

  # Mouse GO biological process and Reactome
  vibe-gsea download --organism mouse --category GO_BP,REACTOME

  # Download to a custom directory
  vibe-gsea download --output /data/msigdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd)
		},
	}

	cmd.Flags().String("organism", "human", "Organism: "+strings.Join(geneset.Organisms(), ", "))
	cmd.Flags().StringSlice("category", geneset.DefaultCategories, "Categories to download")
	cmd.Flags().String("output", "", "Output directory (default: ~/.vibe-gsea/<organism>)")

	return cmd
}

func runDownload(cmd *cobra.Command) error {
	organism := strings.ToLower(viper.GetString("organism"))
	categories := viper.GetStringSlice("category")

	destDir := viper.GetString("output")
	if destDir == "" {
		destDir = geneset.DefaultDir(organism)
		if destDir == "" {
			return fmt.Errorf("cannot determine home directory")
		}
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", destDir, err)
	}

	fmt.Printf("Downloading MSigDB gene sets for %s...\n", organism)
	fmt.Printf("Destination: %s\n\n", destDir)

	for _, category := range categories {
		url, err := geneset.GMTURL(organism, category)
		if err != nil {
			return usageError{err}
		}
		destPath := filepath.Join(destDir, filepath.Base(url))

		if info, err := os.Stat(destPath); err == nil {
			fmt.Printf("  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
			continue
		}

		fmt.Printf("  Downloading %s...\n", filepath.Base(destPath))
		var downloaded int64
		pw := &progressWriter{downloaded: &downloaded, lastPrint: time.Now()}
		if err := geneset.Download(cmd.Context(), url, destPath, pw); err != nil {
			return fmt.Errorf("downloading %s: %w", category, err)
		}
		fmt.Printf("\r    Done: %s          \n", formatSize(downloaded))
	}

	fmt.Printf("\nDownload complete!\n")
	fmt.Printf("To run enrichment, run:\n")
	fmt.Printf("  vibe-gsea run --organism %s results.csv\n", organism)
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	downloaded *int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	*pw.downloaded += int64(n)

	// Print progress every second
	if time.Since(pw.lastPrint) > time.Second {
		fmt.Printf("\r    Progress: %s  ", formatSize(*pw.downloaded))
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
