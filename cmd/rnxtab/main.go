// rnxtab converts RINEX observation files into parquet observation tables
// with JSON metadata sidecars.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v3"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/gnsslab/gorinex/pkg/export"
	"github.com/gnsslab/gorinex/pkg/rinex"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "rnxtab",
		Usage:   "RINEX observations as tables",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config `FILE`"},
			&cli.StringFlag{Name: "outdir", Aliases: []string{"o"}, Usage: "output `DIR`"},
			&cli.StringFlag{Name: "satsys", Usage: "satellite systems to keep, e.g. \"GRE\""},
			&cli.BoolFlag{Name: "summary", Usage: "also write a plain-text summary"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert observation files to parquet plus metadata JSON",
				ArgsUsage: "FILE...",
				Action:    runConvert,
			},
			{
				Name:      "meta",
				Usage:     "Print the metadata of an observation file as JSON",
				ArgsUsage: "FILE",
				Action:    runMeta,
			},
			{
				Name:      "scan",
				Usage:     "List the observation files under a directory",
				ArgsUsage: "DIR",
				Action:    runScan,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// getConfig merges the optional config file with the command-line flags.
func getConfig(c *cli.Context) (*Config, error) {
	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = loadConfig(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("outdir") {
		cfg.OutDir = c.String("outdir")
	}
	if c.IsSet("satsys") {
		cfg.SatSys = c.String("satsys")
	}
	if c.IsSet("summary") {
		cfg.Summary = c.Bool("summary")
	}
	return cfg, nil
}

func runConvert(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("convert needs at least one observation file", 1)
	}
	cfg, err := getConfig(c)
	if err != nil {
		return err
	}

	for _, path := range c.Args().Slice() {
		if err := convertFile(cfg, path); err != nil {
			return err
		}
	}
	return nil
}

func convertFile(cfg *Config, path string) error {
	path, cleanup, err := unpack(path)
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := rinex.OpenObs(path)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": path, "version": f.Header.RINEXVersion,
		"marker": f.Header.MarkerName}).Info("decoding observation file")

	obs, err := f.Observations()
	if err != nil {
		return err
	}
	if cfg.SatSys != "" {
		obs = filterSatSys(obs, cfg.SatSys)
	}
	hdr, err := f.Metadata()
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parquetPath := filepath.Join(cfg.OutDir, base+".parquet")
	if err := export.WriteParquet(parquetPath, obs); err != nil {
		return err
	}

	meta := export.NewMetadata(hdr)
	if err := meta.Validate(); err != nil {
		return err
	}
	if err := meta.Save(filepath.Join(cfg.OutDir, base+".json")); err != nil {
		return err
	}

	if cfg.Summary {
		if err := export.WriteSummary(filepath.Join(cfg.OutDir, base+".summary.txt"), obs); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"rows": len(obs), "out": parquetPath}).Info("converted")
	return nil
}

func runMeta(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("meta needs exactly one observation file", 1)
	}

	path, cleanup, err := unpack(c.Args().First())
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := rinex.OpenObs(path)
	if err != nil {
		return err
	}
	hdr, err := f.Metadata()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(export.NewMetadata(hdr), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runScan(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("scan needs exactly one directory", 1)
	}

	files, err := rinex.FindObsFiles(c.Args().First())
	if err != nil {
		return err
	}
	for _, file := range files {
		fmt.Println(file)
	}
	log.Debugf("%d observation files found", len(files))
	return nil
}

// unpack decompresses a gzipped input into a temp file. The returned cleanup
// removes it again; for plain inputs both the path and the cleanup are
// passthroughs.
func unpack(path string) (string, func(), error) {
	if !strings.EqualFold(filepath.Ext(path), ".gz") {
		return path, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "rnxtab")
	if err != nil {
		return "", nil, err
	}
	dst := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err := archiver.DecompressFile(path, dst); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	log.Debugf("decompressed %s", path)
	return dst, func() { os.RemoveAll(dir) }, nil
}

// filterSatSys keeps the rows of the given constellations.
func filterSatSys(obs []rinex.Observation, satSys string) []rinex.Observation {
	kept := make([]rinex.Observation, 0, len(obs))
	for _, o := range obs {
		if strings.Contains(satSys, o.Constellation) {
			kept = append(kept, o)
		}
	}
	return kept
}
