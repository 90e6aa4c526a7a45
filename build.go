//go:build ignore

// Usage: go run build.go [os/arch ...]
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	projectName = "onebot-cai"
	mainPath    = "./cmd/onebot-cai"
	outputDir   = "./bin"
)

type target struct {
	os, arch string
}

func (t target) String() string { return t.os + "/" + t.arch }

func (t target) output() string {
	name := fmt.Sprintf("%s-%s-%s", projectName, t.os, t.arch)
	if t.os == "windows" {
		name += ".exe"
	}
	return name
}

var targets = []target{
	{"windows", "amd64"},
	{"windows", "arm64"},
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"darwin", "amd64"},
	{"darwin", "arm64"},
}

func main() {
	selected := targets
	if args := os.Args[1:]; len(args) > 0 {
		selected = slices.DeleteFunc(slices.Clone(targets), func(t target) bool {
			return !slices.Contains(args, t.String())
		})
		if len(selected) == 0 {
			fmt.Printf("未知的目标平台: %s\n", strings.Join(args, ", "))
			os.Exit(1)
		}
	}

	os.RemoveAll(outputDir)
	os.MkdirAll(outputDir, 0755)

	version := getVersion()
	buildTime := time.Now().Format("2006-01-02_15:04:05")
	ldflags := fmt.Sprintf("-s -w -X main.Version=%s -X main.BuildTime=%s", version, buildTime)

	fmt.Printf("🚀 开始构建 %s (版本: %s)\n", projectName, version)
	fmt.Printf("📂 输出目录: %s\n\n", outputDir)

	var sums []string
	failed := false
	for i, t := range selected {
		out := filepath.Join(outputDir, t.output())
		fmt.Printf("[%d/%d] 正在构建 %s -> %s ... ", i+1, len(selected), t, t.output())

		// pebble 与 modernc sqlite 均为纯 Go 实现
		cmd := exec.Command("go", "build", "-trimpath", "-o", out, "-ldflags", ldflags, mainPath)
		cmd.Env = append(os.Environ(), "GOOS="+t.os, "GOARCH="+t.arch, "CGO_ENABLED=0")

		if msg, err := cmd.CombinedOutput(); err != nil {
			fmt.Printf("❌ 失败\n")
			fmt.Printf("错误详情:\n%s\n", string(msg))
			failed = true
			continue
		}
		sum, err := checksum(out)
		if err != nil {
			fmt.Printf("❌ 校验和失败: %v\n", err)
			failed = true
			continue
		}
		sums = append(sums, sum+"  "+t.output())
		fmt.Printf("✅ 成功\n")
	}

	if len(sums) > 0 {
		_ = os.WriteFile(filepath.Join(outputDir, "SHA256SUMS"), []byte(strings.Join(sums, "\n")+"\n"), 0644)
	}

	fmt.Println()
	if failed {
		fmt.Println("构建任务失败")
		os.Exit(1)
	}
	fmt.Println("构建任务完成")
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func getVersion() string {
	if out, err := exec.Command("git", "describe", "--tags", "--abbrev=0").Output(); err == nil {
		return strings.TrimSpace(string(out))
	}
	if out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		return "dev-" + strings.TrimSpace(string(out))
	}
	return "dev"
}
