package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/config"
	textpkg "github.com/example/go-kokoro-tts/internal/text"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/spf13/cobra"
)

const defaultText = "Hello, This is Kokoro, your remarkable AI TTS. It's a TTS model with merely 82 million parameters yet delivers incredible audio quality. " +
	"This is one of the top notch inference models, and I'm sure you'll love it. Thank you very much. " +
	"As the night falls, I wish you all a peaceful and restful sleep. May your dreams be filled with joy and happiness. Good night, and sweet dreams!"

// lineToken is replaced by the zero-based line index in file mode output paths.
const lineToken = "{line}"

func newTextCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "text [TEXT]",
		Aliases: []string{"t"},
		Short:   "Synthesize a string of text to a WAV file",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			input := defaultText
			if len(args) == 1 {
				input = args[0]
			}

			eng, err := buildCLIEngine(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			start := time.Now()
			if err := synthesizeToFile(cmd.Context(), eng.svc, cfg, input, out, cmd.OutOrStdout()); err != nil {
				return err
			}
			elapsed := time.Since(start)

			words := len(strings.Fields(input))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Time taken: %v\n", elapsed)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Words per second: %.2f\n", float64(words)/elapsed.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "tmp/output.wav", "Path of the WAV file to write")

	return cmd
}

func newFileCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "file INPUT_PATH",
		Aliases: []string{"f"},
		Short:   "Synthesize one WAV file per non-empty line of a text file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input file: %w", err)
			}

			eng, err := buildCLIEngine(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			for _, line := range textpkg.Lines(string(content)) {
				path := strings.ReplaceAll(out, lineToken, strconv.Itoa(line.Index))
				if err := synthesizeToFile(cmd.Context(), eng.svc, cfg, line.Text, path, cmd.OutOrStdout()); err != nil {
					return fmt.Errorf("line %d: %w", line.Index, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "tmp/output_"+lineToken+".wav",
		"Output path format; "+lineToken+" is replaced with the line number")

	return cmd
}

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stream",
		Aliases: []string{"stdio", "stdin", "-"},
		Short:   "Read lines from stdin and stream mono WAV audio to stdout",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			eng, err := buildCLIEngine(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			return streamLines(cmd.Context(), eng.svc, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	return cmd
}

// outputFormat returns the file format and right-channel phase shift from cfg.
func outputFormat(cfg config.Config) (audio.Format, float32, error) {
	sf, err := audio.ParseSampleFormat(cfg.TTS.SampleFormat)
	if err != nil {
		return audio.Format{}, 0, err
	}
	f := audio.Format{SampleRate: audio.SampleRate, Channels: 2, SampleFormat: sf}
	if cfg.TTS.Mono {
		f.Channels = 1
	}
	return f, float32(cfg.TTS.PhaseShift), nil
}

// synthesizeToFile writes the audio for input to path. Nothing is written
// unless every chunk succeeds.
func synthesizeToFile(ctx context.Context, svc *tts.Service, cfg config.Config, input, path string, stdout io.Writer) error {
	f, shift, err := outputFormat(cfg)
	if err != nil {
		return err
	}

	samples, err := svc.Synthesize(ctx, tts.Request{Text: input})
	if err != nil {
		return err
	}
	data, err := audio.EncodeWAV(audio.Interleave(samples, f.Channels, shift), f)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Audio saved to %s (%s, %.2fs)\n", path, humanize.Bytes(uint64(len(data))), audio.Duration(len(samples)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// streamLines writes one mono WAV header to out, then one flushed sample
// block per non-empty input line. A failing line is reported on stderr and
// skipped.
func streamLines(ctx context.Context, svc *tts.Service, cfg config.Config, in io.Reader, out, stderr io.Writer) error {
	sf, err := audio.ParseSampleFormat(cfg.TTS.SampleFormat)
	if err != nil {
		return err
	}
	sw, err := audio.NewStreamWriter(out, audio.Format{SampleRate: audio.SampleRate, Channels: 1, SampleFormat: sf})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(stderr, "Entering streaming mode. Type text and press Enter. Use Ctrl+D to exit.")
	if err := sw.WriteHeader(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		samples, err := svc.Synthesize(ctx, tts.Request{Text: line})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			slog.Error("stream line failed", "error", err)
			_, _ = fmt.Fprintf(stderr, "Error processing line: %v\n", err)
			continue
		}
		if err := sw.WriteSamples(samples); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stderr, "Audio written to stdout. Ready for another line of text.")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
