// Package main provides the PEUnseal CLI tool.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/ZacharyZcR/PEUnseal/internal/cli"
	"github.com/ZacharyZcR/PEUnseal/internal/config"
	"github.com/ZacharyZcR/PEUnseal/internal/pipeline"
)

var (
	// Layout flags. Non-empty values override the config file.
	configPath     = flag.String("config", "", "布局配置文件 (.yaml/.yml/.toml)")
	imageBase      = flag.String("image-base", "", "镜像基址 (十六进制，留空则读取可选头)")
	pointerTableVA = flag.String("table", "", "指针表VA (十六进制)")
	ivVA           = flag.String("iv", "", "IV的VA (十六进制)")
	ciphertextVA   = flag.String("ct", "", "密文VA (十六进制)")
	ciphertextLen  = flag.Int("ct-len", 0, "密文长度（字节，16的倍数）")
	blockSize      = flag.Int("block-size", 0, "每个哈希数据块的大小（默认: 64）")
	pointerCount   = flag.Int("pointers", 0, "指针表项数（默认: 8）")

	// Output flags.
	verbose    = flag.Bool("v", false, "详细模式：显示头部信息、指针表和十六进制明文")
	debug      = flag.Bool("debug", false, "输出各阶段调试日志")
	jsonOutput = flag.Bool("json", false, "以JSON格式输出报告")
	outPath    = flag.String("out", "", "将明文写入文件")
	useMmap    = flag.Bool("mmap", false, "使用内存映射加载文件")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	log := newLogger()
	if err := unsealPE(flag.Arg(0), log); err != nil {
		log.WithError(err).Debug("运行终止")
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func unsealPE(filepath string, log *logrus.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}
	runner.SetMapped(*useMmap)

	report, err := runner.RunFile(filepath)
	if err != nil {
		return err
	}

	if *jsonOutput {
		if err := cli.WriteJSON(os.Stdout, report); err != nil {
			return fmt.Errorf("写出JSON失败: %w", err)
		}
	} else {
		reporter := cli.NewReporter(report, color.Output)
		reporter.SetVerbose(*verbose)
		reporter.Print()
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, report.Output(), 0o644); err != nil {
			return fmt.Errorf("写入明文失败: %w", err)
		}
		green := color.New(color.FgGreen)
		_, _ = green.Fprintf(os.Stderr, "✓ 明文已写入: %s\n", *outPath)
	}
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}

	addrs := []struct {
		flag string
		dst  *uint64
	}{
		{*imageBase, &cfg.ImageBase},
		{*pointerTableVA, &cfg.PointerTableVA},
		{*ivVA, &cfg.IVVA},
		{*ciphertextVA, &cfg.CiphertextVA},
	}
	for _, a := range addrs {
		if a.flag == "" {
			continue
		}
		v, err := config.ParseAddress(a.flag)
		if err != nil {
			return cfg, err
		}
		*a.dst = v
	}

	if *ciphertextLen != 0 {
		cfg.CiphertextLen = *ciphertextLen
	}
	if *blockSize != 0 {
		cfg.BlockSize = *blockSize
	}
	if *pointerCount != 0 {
		cfg.PointerCount = *pointerCount
	}
	return cfg, nil
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nPEUnseal - PE内嵌密文静态解密工具（不执行目标程序）")

	fmt.Println("\n用法:")
	fmt.Println("  peunseal [选项] <PE文件路径>")
	fmt.Println("\n布局选项（覆盖配置文件）:")
	fmt.Println("  -config <文件>    布局配置文件 (.yaml/.yml/.toml)")
	fmt.Println("  -image-base <VA>  镜像基址（十六进制，留空则读取可选头）")
	fmt.Println("  -table <VA>       指针表VA")
	fmt.Println("  -iv <VA>          IV的VA（16字节）")
	fmt.Println("  -ct <VA>          密文VA")
	fmt.Println("  -ct-len <N>       密文长度（16的倍数）")
	fmt.Println("  -block-size <N>   每个哈希数据块大小（默认: 64）")
	fmt.Println("  -pointers <N>     指针表项数（默认: 8）")
	fmt.Println("\n输出选项:")
	fmt.Println("  -v                详细模式")
	fmt.Println("  -debug            输出各阶段调试日志")
	fmt.Println("  -json             以JSON格式输出")
	fmt.Println("  -out <文件>       将明文写入文件")
	fmt.Println("  -mmap             使用内存映射加载文件")

	fmt.Println("\n示例:")
	fmt.Println("  peunseal -config configs/debugshield.yaml prob.exe")
	fmt.Println("  peunseal -table 0x140036750 -iv 0x140001000 -ct 0x140001010 -ct-len 48 prob.exe")
	fmt.Println("  peunseal -config configs/debugshield.toml -json -out flag.bin prob.exe")
	fmt.Println()
}
