package model

import (
	"fmt"
	"time"
)

type ToolName = string

type Command struct {
	WorkDir    string
	Executable string
	Args       []string
	Env        []string
}

type Tool struct {
	Name     ToolName
	Version  string
	Binaries []string
	Install  Command
}

type Toolchain struct {
	Platform string
	CacheDir string
	BinDir   string
	Tools    []Tool
}

type ToolCacheEntry struct {
	Key       string    `json:"key"`
	Tool      ToolName  `json:"tool"`
	Version   string    `json:"version"`
	Platform  string    `json:"platform"`
	Binaries  []string  `json:"binaries"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToolCacheKey returns the cache key of a tool on the given platform.
func ToolCacheKey(platform string, tool ToolName) string {
	return fmt.Sprintf("%v-website-%v", platform, tool)
}
