package main

import (
	"fmt"
	"github.com/davejbax/go-ifwi"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
)

// app holds the state shared by every subcommand for one invocation
type app struct {
	fs     afero.Fs
	viper  *viper.Viper
	log    *logrus.Logger
	config *Config

	configFile string
	output     string
	dryRun     bool
	verbose    bool
	quiet      bool
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	a := &app{
		fs:    fs,
		viper: viper.New(),
		log:   logrus.New(),
	}
	a.viper.SetFs(fs)

	cmd := &cobra.Command{
		Use:   "ifwitool",
		Short: "Manipulate partitions in an Intel IFWI SPI image",
		Long: `ifwitool inspects and edits the Boot Partition Descriptor Tables (BPDTs) of an
Intel IFWI SPI flash image.

Partitions are identified by their number in the 'print' listing. Moving or
resizing a partition pushes any partition in the way forward, and grows the
S-BPDT that contains it if needed.

Numbers may be given in decimal or with a 0x, 0o or 0b prefix.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.output, "output", "o", "", "write modified SPI image to OUTPUT instead of modifying INPUT")
	flags.BoolVarP(&a.dryRun, "dry-run", "n", false, "edit an in-memory copy and print the resulting tables, leaving files untouched")
	flags.StringVar(&a.configFile, "config", "", "config file (default: ifwitool.yaml in ., $HOME/.ifwitool or /etc/ifwitool)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "only log warnings and errors")
	flags.String("log-level", logrus.InfoLevel.String(), "log level (trace, debug, info, warn, error)")
	_ = a.viper.BindPFlag("log_level", flags.Lookup("log-level"))

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		a.newPrintCommand(),
		a.newAddCommand(),
		a.newMoveCommand(),
		a.newDeleteCommand(),
		a.newExtractCommand(),
		a.newUpdateCommand(),
	)

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	config, err := loadConfig(a.viper, a.configFile)
	if err != nil {
		return err
	}
	a.config = config

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch {
	case a.verbose:
		level = logrus.DebugLevel
	case a.quiet:
		level = logrus.WarnLevel
	}
	a.log.SetLevel(level)

	if a.dryRun {
		// Writes land in memory; reads fall through to the real filesystem
		a.fs = afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(a.fs), afero.NewMemMapFs())
	}

	return nil
}

// withImage opens the image at input and runs fn on it. When modify is set and an output path was given, input is
// copied to the output first and the copy is what gets modified.
func (a *app) withImage(cmd *cobra.Command, input string, modify bool, fn func(*ifwi.Image) error) error {
	path := input
	flag := os.O_RDONLY
	if modify {
		flag = os.O_RDWR

		if a.output != "" {
			if err := a.copyFile(input, a.output); err != nil {
				return err
			}

			path = a.output
		}
	}

	f, err := a.fs.OpenFile(path, flag, 0)
	if err != nil {
		return fmt.Errorf("could not open SPI image: %w", err)
	}
	defer f.Close()

	img, err := ifwi.Open(f, ifwi.WithPrimaryOffsets(a.config.PrimaryOffsets...), ifwi.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("could not load SPI image '%s': %w", path, err)
	}

	if err := fn(img); err != nil {
		return err
	}

	if modify && a.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run: no files were modified. Resulting partition tables:")
		if _, err := img.WriteTo(cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) copyFile(from string, to string) error {
	src, err := a.fs.Open(from)
	if err != nil {
		return fmt.Errorf("could not open SPI image: %w", err)
	}
	defer src.Close()

	dst, err := a.fs.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("could not create output image: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("could not copy SPI image to output: %w", err)
	}

	return dst.Close()
}
