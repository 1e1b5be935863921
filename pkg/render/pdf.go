package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
)

// FormatPDF is the compiled document format.
const FormatPDF = "pdf"

// Compiler defaults.
const (
	DefaultLatexCommand  = "pdflatex"
	DefaultCompileTime   = 60 * time.Second
	DefaultCompilePasses = 2
)

var intermediateExts = []string{".aux", ".log", ".out", ".toc"}

// CompileError reports a failed LaTeX compilation.
type CompileError struct {
	Message  string
	Fragment string // source near the error, from the "l.<n>" log line
	Line     int
	Log      string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("latex compilation failed: %s (line %d: %s)", e.Message, e.Line, e.Fragment)
	}
	return "latex compilation failed: " + e.Message
}

// ParseLog extracts the first error from a LaTeX log. Message is empty
// when the log holds no "!" error line.
func ParseLog(log string) *CompileError {
	ce := &CompileError{Log: log}
	scanner := bufio.NewScanner(strings.NewReader(log))
	for scanner.Scan() {
		line := scanner.Text()
		if ce.Message == "" {
			if msg, ok := strings.CutPrefix(line, "! "); ok {
				ce.Message = strings.TrimSpace(msg)
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "l."); ok {
			num, fragment, _ := strings.Cut(rest, " ")
			if n, err := strconv.Atoi(num); err == nil {
				ce.Line = n
				ce.Fragment = strings.TrimSpace(fragment)
			}
			break
		}
	}
	return ce
}

// CheckEnvironment reports whether the LaTeX command is installed.
func CheckEnvironment(command string) (string, error) {
	if command == "" {
		command = DefaultLatexCommand
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("LaTeX command %q not found; install TeX Live, MacTeX or MiKTeX and ensure it is on PATH: %w", command, err)
	}
	return path, nil
}

// PDFCompiler runs an external LaTeX compiler.
type PDFCompiler struct {
	Command string
	Timeout time.Duration
	// Passes is the number of attempts before giving up.
	Passes           int
	KeepIntermediate bool
	Logger           *slog.Logger
}

// Compile compiles texPath into a PDF next to it and returns the PDF path.
func (c PDFCompiler) Compile(ctx context.Context, texPath string) (string, error) {
	command := c.Command
	if command == "" {
		command = DefaultLatexCommand
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCompileTime
	}
	passes := c.Passes
	if passes <= 0 {
		passes = DefaultCompilePasses
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := filepath.Dir(texPath)
	base := strings.TrimSuffix(filepath.Base(texPath), filepath.Ext(texPath))
	pdfPath := filepath.Join(dir, base+".pdf")
	logPath := filepath.Join(dir, base+".log")
	if !c.KeepIntermediate {
		defer cleanupIntermediate(dir, base)
	}

	var lastErr error
	for pass := 1; pass <= passes; pass++ {
		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, command,
			"-interaction=nonstopmode",
			"-halt-on-error",
			"-output-directory="+dir,
			texPath,
		)
		cmd.Dir = dir
		cmd.Stdout = &out
		cmd.Stderr = &out

		logger.Debug("Running LaTeX", "command", command, "file", texPath, "pass", pass)
		err := cmd.Run()
		if err == nil && fileExists(pdfPath) {
			return pdfPath, nil
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &CompileError{Message: fmt.Sprintf("timed out after %s", timeout), Log: out.String()}
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", &CompileError{Message: fmt.Sprintf("LaTeX command %q not found", command), Log: execErr.Error()}
		}

		logger.Warn("LaTeX pass failed", "file", texPath, "pass", pass, "error", err)
		lastErr = err
	}

	logText := ""
	if data, err := os.ReadFile(logPath); err == nil {
		logText = string(data)
	}
	ce := ParseLog(logText)
	if ce.Message == "" {
		ce.Message = fmt.Sprintf("%s produced no PDF after %d passes: %v", command, passes, lastErr)
	}
	return "", ce
}

// PDF renders invoices to PDF through LaTeX.
type PDF struct {
	LaTeX    *LaTeX
	Compiler PDFCompiler
}

// Format returns the file extension this renderer produces.
func (p *PDF) Format() string { return FormatPDF }

// Render compiles inv in a scratch directory and copies the PDF to path.
func (p *PDF) Render(ctx context.Context, inv *invoice.Invoice, path string) error {
	src, err := p.LaTeX.Source(inv)
	if err != nil {
		return err
	}

	buildDir, err := os.MkdirTemp("", "invoice-build-*")
	if err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(buildDir)

	texPath := filepath.Join(buildDir, inv.Number+".tex")
	if err := os.WriteFile(texPath, src, 0644); err != nil {
		return fmt.Errorf("failed to write LaTeX source: %w", err)
	}

	pdfPath, err := p.Compiler.Compile(ctx, texPath)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.Number, err)
	}
	return copyFile(pdfPath, path)
}

func cleanupIntermediate(dir, base string) {
	for _, ext := range intermediateExts {
		os.Remove(filepath.Join(dir, base+ext))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	return out.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
