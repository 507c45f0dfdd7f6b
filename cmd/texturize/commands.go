package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/texturize/internal/config"
	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/vgg"
	"github.com/born-ml/texturize/texture"
)

func newSplitCmd() *cobra.Command {
	var (
		grid    imaging.Grid
		dir     string
		stem    string
		cropped string
	)
	cmd := &cobra.Command{
		Use:   "split IMAGE",
		Short: "Cut an image into grid tiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := imaging.Load(args[0])
			if err != nil {
				return err
			}
			tiles, err := imaging.Split(img, grid)
			if err != nil {
				return err
			}
			if stem == "" {
				base := filepath.Base(args[0])
				stem = strings.TrimSuffix(base, filepath.Ext(base))
			}
			paths, err := imaging.SaveTiles(dir, stem, tiles)
			if err != nil {
				return err
			}
			if cropped != "" {
				covered, err := imaging.Crop(img, grid)
				if err != nil {
					return err
				}
				if err := imaging.Save(cropped, covered); err != nil {
					return err
				}
				paths = append(paths, cropped)
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&grid.Cols, "cols", 2, "tile columns")
	cmd.Flags().IntVar(&grid.Rows, "rows", 2, "tile rows")
	cmd.Flags().StringVarP(&dir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&stem, "stem", "", "tile file name prefix (default: image name)")
	cmd.Flags().StringVar(&cropped, "cropped", "", "also save the part of the image the tiles cover")
	return cmd
}

func newLayersCmd() *cobra.Command {
	var (
		weights string
		width   int
	)
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "List the layers of the feature network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arch := vgg.VGG19()
			switch {
			case weights != "":
				ex, err := vgg.Load(weights, texture.NewBackend())
				if err != nil {
					return err
				}
				arch = ex.Arch()
			case width > 0:
				arch = vgg.NarrowVGG19(width)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "# %s\n", arch)
			for _, l := range arch.Layers() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", l.Name, l.Kind, l.InChannels, l.OutChannels)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&weights, "weights", "", "read the layout from a SafeTensors file")
	cmd.Flags().IntVar(&width, "width", 0, "show a narrowed network with this first block width")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print a run file with every default filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Default().Encode(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "yaml or toml")
	return cmd
}
