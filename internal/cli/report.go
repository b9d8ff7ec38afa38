// Package cli provides command-line interface utilities.
package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/PEUnseal/internal/pipeline"
)

// Reporter formats and prints unseal results.
type Reporter struct {
	report  *pipeline.Report
	out     io.Writer
	verbose bool
}

// NewReporter creates a new reporter writing to out.
func NewReporter(report *pipeline.Report, out io.Writer) *Reporter {
	return &Reporter{report: report, out: out}
}

// SetVerbose enables verbose mode (header metadata, pointer table, hex dump).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// Print outputs the complete report.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printSections()
	r.printTLS()
	if r.verbose {
		r.printPointerTable()
	}
	r.printCrypto()
	r.printPlaintext()
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintln(r.out, "\n╔════════════════════════════════════════╗")
	_, _ = cyan.Fprintln(r.out, "║          PEUnseal 解密报告             ║")
	_, _ = cyan.Fprintln(r.out, "╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo() {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintln(r.out, "\n【基本信息】")

	rep := r.report
	fmt.Fprintf(r.out, "  %-20s: %s\n", "文件路径", rep.ImagePath)
	fmt.Fprintf(r.out, "  %-20s: %s\n", "文件大小", formatSize(rep.ImageSize))

	base := fmt.Sprintf("0x%X", rep.ImageBase)
	if rep.ImageBaseDetected {
		base += " (来自可选头)"
	}
	fmt.Fprintf(r.out, "  %-20s: %s\n", "镜像基址", base)

	if rep.Info != nil && r.verbose {
		fmt.Fprintf(r.out, "  %-20s: %s\n", "架构", rep.Info.Architecture)
		fmt.Fprintf(r.out, "  %-20s: %s\n", "子系统", rep.Info.Subsystem)
		fmt.Fprintf(r.out, "  %-20s: 0x%X\n", "入口点", rep.Info.EntryPoint)
	}

	if sum := rep.Checksum; sum != nil {
		fmt.Fprintf(r.out, "  %-20s: ", "校验和")
		switch {
		case sum.Stored == 0:
			fmt.Fprintf(r.out, "未设置 (计算值 0x%08X)\n", sum.Computed)
		case sum.Valid():
			_, _ = color.New(color.FgGreen).Fprintf(r.out, "0x%08X ✓\n", sum.Stored)
		default:
			_, _ = color.New(color.FgRed, color.Bold).Fprintf(r.out, "0x%08X ✗ (计算值 0x%08X)\n", sum.Stored, sum.Computed)
		}
	}
}

func (r *Reporter) printSections() {
	sections := r.report.Sections

	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.out, "\n【节区信息】(共 %d 个)\n", len(sections))

	if len(sections) == 0 {
		fmt.Fprintln(r.out, "  未发现节区")
		return
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 80))
	fmt.Fprintf(r.out, "  %-10s %-12s %-12s %-12s %-6s %-8s\n", "名称", "虚拟地址", "原始大小", "原始偏移", "权限", "熵")
	fmt.Fprintln(r.out, strings.Repeat("-", 80))

	for _, s := range sections {
		permColor := color.New(color.FgWhite)
		if s.IsWritableCode() {
			permColor = color.New(color.FgRed, color.Bold)
		}
		entropyColor := color.New(color.FgWhite)
		if s.Entropy > 7.0 {
			entropyColor = color.New(color.FgRed, color.Bold)
		}
		fmt.Fprintf(r.out, "  %-10s 0x%08X   0x%08X   0x%08X   ", s.Name, s.VirtualAddress, s.RawSize, s.RawPointer)
		_, _ = permColor.Fprintf(r.out, "%-6s ", s.Permissions())
		_, _ = entropyColor.Fprintf(r.out, "%.2f\n", s.Entropy)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 80))
}

func (r *Reporter) printTLS() {
	callbacks := r.report.TLSCallbacks
	if len(callbacks) == 0 {
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	_, _ = yellow.Fprintf(r.out, "\n【TLS回调】(共 %d 个)\n", len(callbacks))
	_, _ = red.Fprintln(r.out, "  ⚠ 回调在入口点之前执行，常用于反调试检测")
	for i, cb := range callbacks {
		fmt.Fprintf(r.out, "  %3d. 0x%X\n", i, cb)
	}
}

func (r *Reporter) printPointerTable() {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.out, "\n【指针表】(共 %d 项)\n", len(r.report.PointerTable))
	for i, ptr := range r.report.PointerTable {
		fmt.Fprintf(r.out, "  %3d. 0x%X\n", i, ptr)
	}
}

func (r *Reporter) printCrypto() {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	_, _ = yellow.Fprintln(r.out, "\n【密钥材料】")

	fmt.Fprintf(r.out, "  %-6s ", "KEY")
	_, _ = green.Fprintln(r.out, r.report.KeyHex())
	fmt.Fprintf(r.out, "  %-6s %s\n", "IV", r.report.IVHex())
	fmt.Fprintf(r.out, "  %-6s %s\n", "CT", r.report.CiphertextHex())
	fmt.Fprintf(r.out, "  %-6s %.2f\n", "CT熵", r.report.CiphertextEntropy)
}

func (r *Reporter) printPlaintext() {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintln(r.out, "\n【明文】")

	fmt.Fprintf(r.out, "  %-6s ", "填充")
	if r.report.PaddingValid() {
		green := color.New(color.FgGreen)
		_, _ = green.Fprintf(r.out, "✓ 有效 (去除 %d 字节)\n", len(r.report.Plaintext)-len(r.report.Unpadded))
	} else {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(r.out, "✗ %v\n", r.report.PaddingErr)
	}

	out := r.report.Output()
	fmt.Fprintf(r.out, "  %-6s %s\n", "PT", quoteBytes(out))

	if r.verbose {
		fmt.Fprintln(r.out)
		fmt.Fprint(r.out, hex.Dump(r.report.Plaintext))
	}
	fmt.Fprintln(r.out)
}

// quoteBytes prints text as a quoted string and binary data as hex.
func quoteBytes(b []byte) string {
	if utf8.Valid(b) {
		return strconv.Quote(string(b))
	}
	return hex.EncodeToString(b)
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
