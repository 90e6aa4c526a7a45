package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrNoSilkEncoder 未配置 silk 编码器且输入不是 silk
var ErrNoSilkEncoder = errors.New("未配置 silk 编码器")

// Transcoder 将媒体转换为协议要求的格式
type Transcoder interface {
	// Voice 转为 silk 语音
	Voice(ctx context.Context, data []byte) ([]byte, error)
	// Video 转为 mp4，并截取第 1 秒作为缩略图
	Video(ctx context.Context, data []byte) (video, thumb []byte, err error)
}

// FFmpeg 基于 ffmpeg 命令行的转码器
type FFmpeg struct {
	Path        string // ffmpeg 可执行文件
	SilkEncoder string // silk 编码器可执行文件，参数为 <输入 pcm> <输出 silk>
}

// IsSilk 判断数据是否已是 silk 格式
func IsSilk(data []byte) bool {
	return bytes.HasPrefix(data, []byte("#!SILK")) || bytes.HasPrefix(data, []byte("\x02#!SILK"))
}

// Voice 先转为 24kHz 单声道 s16le pcm，再交给 silk 编码器
func (f *FFmpeg) Voice(ctx context.Context, data []byte) ([]byte, error) {
	if IsSilk(data) {
		return data, nil
	}
	if f.SilkEncoder == "" {
		return nil, ErrNoSilkEncoder
	}

	dir, err := os.MkdirTemp("", "onebot-voice-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	pcm := filepath.Join(dir, "voice.pcm")
	out := filepath.Join(dir, "voice.silk")
	if err := os.WriteFile(in, data, 0600); err != nil {
		return nil, err
	}

	if err := f.run(ctx, f.bin(), "-y", "-i", in, "-f", "s16le", "-ar", "24000", "-ac", "1", pcm); err != nil {
		return nil, err
	}
	if err := f.run(ctx, f.SilkEncoder, pcm, out); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

// Video 转封装为 mp4 并生成缩略图
func (f *FFmpeg) Video(ctx context.Context, data []byte) ([]byte, []byte, error) {
	dir, err := os.MkdirTemp("", "onebot-video-*")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	out := filepath.Join(dir, "video.mp4")
	thumb := filepath.Join(dir, "thumb.jpg")
	if err := os.WriteFile(in, data, 0600); err != nil {
		return nil, nil, err
	}

	if err := f.run(ctx, f.bin(), "-y", "-i", in, "-c", "copy", "-f", "mp4", out); err != nil {
		return nil, nil, err
	}
	if err := f.run(ctx, f.bin(), "-y", "-ss", "1", "-i", out, "-frames:v", "1", thumb); err != nil {
		return nil, nil, err
	}

	video, err := os.ReadFile(out)
	if err != nil {
		return nil, nil, err
	}
	img, err := os.ReadFile(thumb)
	if err != nil {
		return nil, nil, err
	}
	return video, img, nil
}

func (f *FFmpeg) bin() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Debug("转码命令失败", "cmd", name, "stderr", stderr.String())
		return fmt.Errorf("执行 %s: %w", filepath.Base(name), err)
	}
	return nil
}
