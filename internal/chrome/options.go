package chrome

import (
	"github.com/chromedp/chromedp"

	u "ogimage/internal/utils"
)

// allocatorOptions builds the exec allocator flags shared by the one-shot
// path and the pool.
func allocatorOptions(cfg u.ChromeConfig, execPath, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.Flag("hide-scrollbars", true),
		// Software rendering keeps minimal containers away from Vulkan/ANGLE.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if profileDir != "" {
		opts = append(opts, chromedp.UserDataDir(profileDir))
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if cfg.NoSandbox || cfg.Serverless {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.Serverless {
		opts = append(opts,
			chromedp.Flag("single-process", true),
			chromedp.Flag("no-zygote", true),
		)
	}
	return opts
}
