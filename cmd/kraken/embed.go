package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/kraken/internal/textnorm"
)

var embedCmd = &cobra.Command{
	Use:   "embed <text>...",
	Short: "Check the embedding provider by encoding texts",
	Long: `Encode each argument through the configured provider and embedding cache,
then print the vector dimension and the pairwise cosine similarities. Useful to
verify credentials and model settings before building indexes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	texts := make([]string, len(args))
	for i, s := range args {
		texts[i] = textnorm.Normalize(s)
	}
	cached := a.Cache.Len()
	vectors, err := a.Encoder.Encode(cmd.Context(), texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	printEmbeddings(os.Stdout, a.Encoder.ModelID(), texts, vectors)
	fmt.Printf("Cache entries: %d (+%d)\n", a.Cache.Len(), a.Cache.Len()-cached)
	return nil
}

func printEmbeddings(w io.Writer, model string, texts []string, vectors [][]float32) {
	fmt.Fprintf(w, "Model: %s\n", model)
	for i, v := range vectors {
		fmt.Fprintf(w, "[%d] %q dim=%d norm=%.4f\n", i, texts[i], len(v), norm(v))
	}
	if len(vectors) < 2 {
		return
	}
	fmt.Fprintln(w, "Cosine similarity:")
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			fmt.Fprintf(w, "  [%d]-[%d] %.4f\n", i, j, cosine(vectors[i], vectors[j]))
		}
	}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}
