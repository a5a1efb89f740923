package lex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/go-elixir/pkg/diagnostic"
	"github.com/walteh/go-elixir/pkg/finder"
	"github.com/walteh/go-elixir/pkg/lexer"
	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/token"
)

var formats = []string{"text", "json", "yaml", "vscode"}

type Handler struct {
	fs         afero.Fs
	policyPath string
	format     string // text, json, yaml, vscode
	watch      bool

	out    io.Writer
	errOut io.Writer
}

// document is one file in json and yaml output.
type document struct {
	File   string         `json:"file" yaml:"file"`
	Tokens []token.Record `json:"tokens" yaml:"tokens"`
}

func NewLexCommand(vp *viper.Viper, fs afero.Fs) *cobra.Command {
	me := &Handler{fs: fs}

	cmd := &cobra.Command{
		Use:   "lex [flags] <file|glob>...",
		Short: "lex templates into their token stream",
		Args:  cobra.MinimumNArgs(1),
	}

	cmd.Flags().String("policy", "", "policy file (yaml or hcl)")
	cmd.Flags().String("format", "text", "output format: "+strings.Join(formats, " | "))
	cmd.Flags().Bool("watch", false, "re-lex files when they change")

	for _, name := range []string{"policy", "format", "watch"} {
		if err := vp.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.policyPath = vp.GetString("policy")
		me.format = vp.GetString("format")
		me.watch = vp.GetBool("watch")
		me.out = cmd.OutOrStdout()
		me.errOut = cmd.ErrOrStderr()
		return me.Run(cmd.Context(), args)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, patterns []string) error {
	if !slices.Contains(formats, me.format) {
		return errors.Errorf("unknown format %q, want one of %s", me.format, strings.Join(formats, ", "))
	}

	files, err := finder.NewDefaultFinder(me.fs).FindTemplates(ctx, patterns)
	if err != nil {
		return err
	}

	l, err := me.lexer()
	if err != nil {
		return err
	}
	gen := diagnostic.NewDefaultGenerator(l)

	var result *multierror.Error
	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, file.Path)
		if err := me.lexFile(ctx, gen, file.Path, file.Content); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if me.watch {
		if err := me.watchFiles(ctx, gen, paths); err != nil {
			return err
		}
	}

	return result.ErrorOrNil()
}

func (me *Handler) lexer() (*lexer.Lexer, error) {
	p := policy.Default()
	if me.policyPath != "" {
		loaded, err := policy.Load(me.fs, me.policyPath)
		if err != nil {
			return nil, errors.Errorf("loading policy: %w", err)
		}
		p = loaded
	}
	return lexer.New(p)
}

func (me *Handler) lexFile(ctx context.Context, gen diagnostic.Generator, file string, src []byte) error {
	logger := zerolog.Ctx(ctx).With().Str("file", file).Logger()

	diags, stream, lexErr := gen.Generate(logger.WithContext(ctx), file, src)

	if me.format == "vscode" {
		out, err := diagnostic.NewVSCodeFormatter().Format(diags)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(me.out, string(out)); err != nil {
			return err
		}
	} else {
		if len(diags.Errors)+len(diags.Warnings) > 0 {
			out, err := diagnostic.NewTextFormatter().Format(&diagnostic.Diagnostics{File: diags.File, Errors: diags.Errors, Warnings: diags.Warnings})
			if err != nil {
				return err
			}
			if _, err := me.errOut.Write(out); err != nil {
				return err
			}
		}
		if stream != nil {
			if err := me.writeStream(file, stream); err != nil {
				return err
			}
		}
	}

	if lexErr != nil {
		logger.Debug().Err(lexErr).Msg("lexing failed")
		return errors.Errorf("%s: %w", file, lexErr)
	}
	return nil
}

func (me *Handler) writeStream(file string, stream *token.Stream) error {
	switch me.format {
	case "json":
		enc := json.NewEncoder(me.out)
		enc.SetIndent("", "  ")
		return enc.Encode(document{File: file, Tokens: token.Records(stream)})
	case "yaml":
		enc := yaml.NewEncoder(me.out)
		enc.SetIndent(2)
		if err := enc.Encode(document{File: file, Tokens: token.Records(stream)}); err != nil {
			return errors.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintf(me.out, "# %s\n%s", file, token.Dump(stream))
		return err
	}
}

// watchFiles re-lexes a file every time it is written, until ctx is done.
// Directories are watched rather than files so editors that replace a file
// on save keep being followed.
func (me *Handler) watchFiles(ctx context.Context, gen diagnostic.Generator, files []string) error {
	logger := zerolog.Ctx(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(files))
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return errors.Errorf("resolving %s: %w", file, err)
		}
		watched[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return errors.Errorf("watching %s: %w", file, err)
		}
	}

	logger.Info().Int("files", len(files)).Msg("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[event.Name] || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("template changed")
			src, err := afero.ReadFile(me.fs, event.Name)
			if err != nil {
				logger.Warn().Err(err).Msg("reading changed template")
				continue
			}
			if err := me.lexFile(ctx, gen, event.Name, src); err != nil {
				logger.Warn().Err(err).Msg("lexing changed template")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
