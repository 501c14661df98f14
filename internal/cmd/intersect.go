package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

var intersectCmd = &cobra.Command{
	Use:   "intersect <a> <b>",
	Short: "Overlay two vector datasets",
	Long: `Intersect computes the overlay of two vector datasets (GeoJSON, shapefile,
CSV, paths or URLs) and writes the result as GeoJSON. Attributes of both
inputs are carried over; names present in both get "_1" and "_2" suffixes.`,
	Args: cobra.ExactArgs(2),
	RunE: runIntersect,
}

func init() {
	rootCmd.AddCommand(intersectCmd)

	intersectCmd.Flags().StringP("output", "o", "", "Output GeoJSON file (default: stdout)")
	intersectCmd.Flags().String("op", "intersection", "Overlay operation: intersection or difference")

	mustBind(intersectCmd, "intersect.output", "output")
	mustBind(intersectCmd, "intersect.op", "op")
}

func runIntersect(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	op, err := springmap.ParseOverlayOp(viper.GetString("intersect.op"))
	if err != nil {
		return err
	}

	m, err := springmap.Default(mapOptions(nil)...)
	if err != nil {
		return err
	}

	fc, err := m.Overlay(context.Background(), springmap.ParseSource(args[0]), springmap.ParseSource(args[1]), op)
	if err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	output := viper.GetString("intersect.output")
	if output == "" {
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	logger.Info("Overlay written", "op", op.String(), "features", len(fc.Features), "output", output)
	return nil
}
