package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FlatDrop/internal/app"
	"github.com/dharsanguruparan/FlatDrop/internal/config"
	pdfutil "github.com/dharsanguruparan/FlatDrop/internal/pdf"
)

func newConvertCmd() *cobra.Command {
	cfg := config.Config{
		RasterScale:   pdfutil.DefaultScale,
		ResizeWidth:   2480,
		ResizeHeight:  3508,
		PageWidth:     pdfutil.LetterWidth,
		PageHeight:    pdfutil.LetterHeight,
		Placement:     pdfutil.PlacementNatural,
		EncodeWorkers: 4,
		VerifyOutput:  true,
	}
	var output string
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Flatten a document locally without the HTTP service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Placement != pdfutil.PlacementNatural && cfg.Placement != pdfutil.PlacementStretch {
				return fmt.Errorf("unknown placement %q", cfg.Placement)
			}
			if output == "" {
				output = "flattened.pdf"
			}
			renderer := app.NewRenderer(&cfg)
			rendered, err := renderer.Render(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, rendered.Document, 0o640); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d bytes\n", output, len(rendered.Pages), len(rendered.Document))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "Output file (default flattened.pdf)")
	f.IntVar(&cfg.RasterScale, "scale", cfg.RasterScale, "Longest side of each rasterized page, in pixels")
	f.IntVar(&cfg.ResizeWidth, "max-width", cfg.ResizeWidth, "Width of the box page images are fit into")
	f.IntVar(&cfg.ResizeHeight, "max-height", cfg.ResizeHeight, "Height of the box page images are fit into")
	f.Float64Var(&cfg.PageWidth, "page-width", cfg.PageWidth, "Output page width in points")
	f.Float64Var(&cfg.PageHeight, "page-height", cfg.PageHeight, "Output page height in points")
	f.StringVar(&cfg.Placement, "placement", cfg.Placement, "Image placement: natural or stretch")
	f.IntVar(&cfg.EncodeWorkers, "workers", cfg.EncodeWorkers, "Pages encoded in parallel")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "inspect <pdf>",
		Short: "Print the page count, and optionally the extractable text, of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pages, err := pdfutil.PageCount(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pages: %d\n", pages)
			if !showText {
				return nil
			}
			text, err := pdfutil.ExtractText(data)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "Also print extractable text")
	return cmd
}
