package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/clipbot/internal/config"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
	"github.com/keagan/clipbot/internal/music"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/internal/store"
	"github.com/keagan/clipbot/pkg/util"
)

var musicCmd = &cobra.Command{
	Use:   "music",
	Short: "Background music commands",
}

var musicDownloadCmd = &cobra.Command{
	Use:   "download [dir]",
	Short: "Download the configured background tracks",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		dir := cfg.Music.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		urls := cfg.Music.URLs
		if len(urls) == 0 {
			urls = config.DefaultMusicURLs
		}

		d := music.NewDownloader(log.Logger, cfg.Music.RequestsPerSecond)
		results, err := d.Download(cmd.Context(), urls, dir)
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			switch {
			case r.Err != nil:
				failed++
				fmt.Printf("failed   %s: %v\n", r.URL, r.Err)
			case r.Skipped:
				fmt.Printf("exists   %s\n", r.Path)
			default:
				fmt.Printf("fetched  %s\n", r.Path)
			}
		}
		if failed == len(results) && failed > 0 {
			return fmt.Errorf("no track could be downloaded")
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "clipbot.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("configuration written")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var listCmd = &cobra.Command{
	Use:       "list [formats|eq|resolutions]",
	Short:     "List available resources",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"formats", "eq", "resolutions"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		switch args[0] {
		case "formats":
			fmt.Fprintf(w, "video\t%s\n", strings.Join(media.VideoExtensions, " "))
			fmt.Fprintf(w, "music\t%s\n", strings.Join(media.AudioExtensions, " "))
			var ts []string
			for _, t := range render.Transitions() {
				ts = append(ts, string(t))
			}
			fmt.Fprintf(w, "transitions\t%s\n", strings.Join(ts, " "))
		case "eq":
			for _, p := range mix.DefaultProfiles().List() {
				fmt.Fprintf(w, "%s\t%d bands\t%s\n", p.Name, len(p.Bands), p.Description)
			}
		case "resolutions":
			for _, r := range media.Resolutions() {
				if width, height, ok := r.Dimensions(); ok {
					fmt.Fprintf(w, "%s\t%dx%d\n", r, width, height)
				} else {
					fmt.Fprintf(w, "%s\tsource size\n", r)
				}
			}
		}
		return nil
	},
}

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		st, err := store.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(runsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "RUN\tSTARTED\tTOOK\tVIDEOS\tDONE\tSKIPPED\tFAILED\tCLIPS\tINPUT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
				r.Processed, r.Completed, r.Skipped, r.Failed, r.Clips,
				r.Input)
		}
		return nil
	},
}

func init() {
	musicCmd.AddCommand(musicDownloadCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs to show (0 = all)")
}
