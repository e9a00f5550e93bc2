package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"

	"github.com/rkm/s2-parcels/internal/aoi"
	"github.com/rkm/s2-parcels/internal/config"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/pipeline"
	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/translate"
	"github.com/rkm/s2-parcels/internal/workspace"
)

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	quiet  bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "s2parcels",
		Short: "Sentinel-2 vegetation indices for land parcels",
		Long: `s2parcels downloads Sentinel-2 Level-2A products covering a set of
parcels, keeps a CSV ledger of what was downloaded, derives NDVI and NDRE
and clips NDVI, NDRE and true colour imagery to every parcel.

Configuration is read from the environment (and .env files), see
internal/config for the variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			a.logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
			godal.RegisterAll()
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "do not draw progress bars")

	root.AddCommand(
		a.convertCmd(),
		a.downloadCmd(),
		a.processCmd(),
		a.runCmd(),
		a.ledgerCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <dir>",
		Short: "Convert KML and shapefiles to GeoJSON",
		Long: `Convert every .kml and .shp file in dir and in its immediate
sub-directories into a sibling <name>.geojson, one feature per polygon.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := aoi.ConvertTree(args[0], a.logger)
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return err
		},
	}
}

type downloadFlags struct {
	aoi       []string
	start     string
	end       string
	threshold float64
	regional  bool
	cloudMax  float64
	limit     int
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.aoi, "aoi", nil, "polygon files (KML, shapefile or GeoJSON)")
	cmd.Flags().StringVar(&f.start, "start", "", "first sensing day (dd/mm/YYYY)")
	cmd.Flags().StringVar(&f.end, "end", "", "last sensing day (dd/mm/YYYY)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum coverage of a polygon (default SELECT_DOWNLOAD_THRESHOLD)")
	cmd.Flags().BoolVar(&f.regional, "regional", false, "measure coverage against the product footprint")
	cmd.Flags().Float64Var(&f.cloudMax, "cloud-max", 0, "maximum cloud cover percentage (default SELECT_CLOUD_MAX)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum products per polygon search, 0 for no limit")
	_ = cmd.MarkFlagRequired("aoi")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func (a *app) downloadRequest(cmd *cobra.Command, f *downloadFlags) (pipeline.DownloadRequest, error) {
	req := pipeline.DownloadRequest{
		Threshold:     a.cfg.Select.DownloadThreshold,
		Regional:      a.cfg.Select.Regional,
		CloudCoverMin: a.cfg.Select.CloudMin,
		CloudCoverMax: a.cfg.Select.CloudMax,
		ProductType:   a.cfg.Select.ProductType,
		Limit:         f.limit,
	}
	if cmd.Flags().Changed("threshold") {
		req.Threshold = f.threshold
	}
	if cmd.Flags().Changed("regional") {
		req.Regional = f.regional
	}
	if cmd.Flags().Changed("cloud-max") {
		req.CloudCoverMax = f.cloudMax
	}

	polygons, err := aoi.ReadAll(f.aoi)
	if err != nil {
		return req, err
	}
	req.AOI = polygons

	if req.Start, err = translate.ParseDay(f.start); err != nil {
		return req, err
	}
	end, err := translate.ParseDay(f.end)
	if err != nil {
		return req, err
	}
	// The end day is inclusive.
	req.End = end.AddDate(0, 0, 1).Add(-time.Second)
	return req, nil
}

func (a *app) downloadCmd() *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Search the catalogue and download covering products",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.downloadRequest(cmd, &f)
			if err != nil {
				return err
			}
			_, err = a.download(cmd, req)
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) download(cmd *cobra.Command, req pipeline.DownloadRequest) (*pipeline.DownloadReport, error) {
	downloader, err := a.newDownloader(cmd.Context())
	if err != nil {
		return nil, err
	}
	if !a.quiet {
		downloader.WithProgress(progressBar("downloading"))
	}

	report, err := downloader.Run(cmd.Context(), req)
	if report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "found %d, selected %d, downloaded %d, recorded %d\n",
			report.Found, len(report.Selected), len(report.Downloaded), report.Recorded)
	}
	return report, err
}

type processFlags struct {
	aoi       []string
	from      string
	to        string
	threshold float64
	regional  bool
	indices   []string
}

func (f *processFlags) register(cmd *cobra.Command, withRange bool) {
	if withRange {
		cmd.Flags().StringSliceVar(&f.aoi, "aoi", nil, "polygon files (KML, shapefile or GeoJSON)")
		cmd.Flags().StringVar(&f.from, "from", "", "process products acquired after this day (dd/mm/YYYY)")
		cmd.Flags().StringVar(&f.to, "to", "", "process products acquired up to this day (dd/mm/YYYY)")
		cmd.Flags().BoolVar(&f.regional, "regional", false, "measure coverage against the product footprint")
		_ = cmd.MarkFlagRequired("aoi")
	}
	cmd.Flags().Float64Var(&f.threshold, "process-threshold", 0, "minimum coverage for processing (default SELECT_PROCESS_THRESHOLD)")
	cmd.Flags().StringSliceVar(&f.indices, "indices", nil, "outputs to write: ndvi, ndre, tci (default all)")
}

func (a *app) processRequest(cmd *cobra.Command, f *processFlags) (pipeline.ProcessRequest, error) {
	req := pipeline.ProcessRequest{
		Threshold: a.cfg.Select.ProcessThreshold,
		Regional:  a.cfg.Select.Regional,
	}
	if cmd.Flags().Changed("process-threshold") {
		req.Threshold = f.threshold
	}
	if cmd.Flags().Changed("regional") {
		req.Regional = f.regional
	}

	for _, s := range f.indices {
		kind, err := workspace.ParseKind(s)
		if err != nil {
			return req, err
		}
		req.Indices = append(req.Indices, kind)
	}

	var err error
	if f.from != "" {
		if req.Range.From, err = translate.ParseDay(f.from); err != nil {
			return req, err
		}
	}
	if f.to != "" {
		if req.Range.To, err = translate.ParseDay(f.to); err != nil {
			return req, err
		}
	}

	if len(f.aoi) > 0 {
		if req.Polygons, err = aoi.ReadAll(f.aoi); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (a *app) processCmd() *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Derive indices and clip them to every polygon",
		Long: `Process the products recorded in the ledger: for every polygon keep
the products covering it, derive NDVI and NDRE once per product and write
<root>/<polygon>/{NDVI,NDRE,TCI}/<dd-mm-YYYY>_<kind>.tiff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.processRequest(cmd, &f)
			if err != nil {
				return err
			}
			return a.process(cmd, req)
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) process(cmd *cobra.Command, req pipeline.ProcessRequest) error {
	processor := pipeline.NewProcessor(
		ledger.NewStore(a.cfg.Ledger.Path),
		workspace.New(a.cfg.Output.Root, a.cfg.Output.Overwrite),
		pipeline.GDALRasters{},
		a.cfg.Download.Database,
		a.logger,
	).WithConcurrency(a.cfg.Output.Concurrency)
	if !a.quiet {
		processor.WithProgress(progressBar("processing"))
	}

	report, err := processor.Run(cmd.Context(), req)
	if report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "tasks %d, written %d, skipped %d\n",
			report.Tasks, len(report.Written), report.Skipped)
	}
	return err
}

func (a *app) runCmd() *cobra.Command {
	var (
		df downloadFlags
		pf processFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download then process the same polygons and dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			dreq, err := a.downloadRequest(cmd, &df)
			if err != nil {
				return err
			}
			preq, err := a.processRequest(cmd, &pf)
			if err != nil {
				return err
			}
			preq.Polygons = dreq.AOI
			// Range.From is exclusive, the catalogue search is not.
			preq.Range = ledger.Range{From: dreq.Start.Add(-time.Nanosecond), To: dreq.End}
			preq.Regional = dreq.Regional

			// A partial download still leaves products worth processing.
			_, downloadErr := a.download(cmd, dreq)
			if downloadErr != nil {
				a.logger.Warn("download finished with errors", slog.String("error", downloadErr.Error()))
			}
			return errors.Join(downloadErr, a.process(cmd, preq))
		},
	}
	df.register(cmd)
	pf.register(cmd, false)
	return cmd
}

func (a *app) ledgerCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print the downloaded products",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r ledger.Range
			var err error
			if from != "" {
				if r.From, err = translate.ParseDay(from); err != nil {
					return err
				}
			}
			if to != "" {
				if r.To, err = translate.ParseDay(to); err != nil {
					return err
				}
			}

			records, err := ledger.NewStore(a.cfg.Ledger.Path).Load()
			if err != nil {
				return err
			}

			return printLedger(cmd.OutOrStdout(), ledger.Filter(records, r))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "only products acquired after this day (dd/mm/YYYY)")
	cmd.Flags().StringVar(&to, "to", "", "only products acquired up to this day (dd/mm/YYYY)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var aoiFiles []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve outputs and the ledger as a STAC catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Server.AOI != "" {
				aoiFiles = append(aoiFiles, a.cfg.Server.AOI)
			}
			return a.serve(cmd.Context(), aoiFiles)
		},
	}
	cmd.Flags().StringSliceVar(&aoiFiles, "aoi", nil, "polygon files giving collections their geometry")
	return cmd
}

// printLedger writes records as aligned columns. Records without a sensing
// date leave that cell empty.
func printLedger(w io.Writer, records []product.Product) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INGESTED\tSENSED\tCLOUD\tTITLE\tID")
	for _, p := range records {
		var sensed string
		if !p.SensingDate.IsZero() {
			sensed = translate.FormatFileDay(p.SensingDate)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n",
			p.IngestionDate.UTC().Format(time.DateTime),
			sensed, p.CloudCover, p.Title, p.ID)
	}
	return tw.Flush()
}
