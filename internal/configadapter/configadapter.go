// Package configadapter is a reference implementation of the config loader
// the core treats as an external collaborator (spec §6): it decodes a
// cockpit.yaml/cockpit.json document into a workspace.Catalog. It is a
// minimal stand-in for the excluded TypeScript-file evaluator, not a
// specified subsystem.
package configadapter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/cockpitdev/cockpit/internal/workspace"
)

// rawDocument mirrors the on-disk schema described in spec §6: a root path,
// a workspace table, and a per-workspace task config table. The union
// fields (command, cleanup, dependsOn entries) are decoded as interface{}
// and normalized afterward.
type rawDocument struct {
	Root             string                   `mapstructure:"root"`
	DefaultWorkspace string                   `mapstructure:"defaultWorkspace"`
	Workspaces       map[string]rawWorkspace  `mapstructure:"workspaces"`
	TaskConfigs      map[string]rawTaskConfig `mapstructure:"taskConfigs"`
}

type rawWorkspace struct {
	Name      string   `mapstructure:"name"`
	Path      string   `mapstructure:"path"`
	Tags      []string `mapstructure:"tags"`
	DependsOn []string `mapstructure:"dependsOn"`
}

type rawTaskConfig struct {
	Env   map[string]string        `mapstructure:"env"`
	Tasks map[string]rawTaskDefinition `mapstructure:"tasks"`
}

type rawTaskDefinition struct {
	Command      interface{}   `mapstructure:"command"`
	Description  string        `mapstructure:"description"`
	Env          map[string]string `mapstructure:"env"`
	Inputs       []string      `mapstructure:"inputs"`
	Outputs      []string      `mapstructure:"outputs"`
	Cleanup      interface{}   `mapstructure:"cleanup"`
	Cache        *bool         `mapstructure:"cache"`
	Cwd          string        `mapstructure:"cwd"`
	AllowFailure bool          `mapstructure:"allowFailure"`
	TimeoutMS    int           `mapstructure:"timeout"`
	Platform     string        `mapstructure:"platform"`
	DependsOn    []interface{} `mapstructure:"dependsOn"`
	Persistent   bool          `mapstructure:"persistent"`
}

// Load reads the config file at path and decodes it into a workspace.Catalog
// rooted at the config file's own directory (overridden by an explicit
// "root" key).
func Load(path string) (*workspace.Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	var raw rawDocument
	if err := v.Unmarshal(&raw); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", path)
	}

	root := raw.Root
	if root == "" {
		root = filepath.Dir(path)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving root path %s", root)
	}

	cat := &workspace.Catalog{
		RootAbsPath:      absRoot,
		DefaultWorkspace: raw.DefaultWorkspace,
		Workspaces:       make(map[string]workspace.Info, len(raw.Workspaces)),
		TaskConfigs:      make(map[string]workspace.TaskConfig, len(raw.TaskConfigs)),
	}

	for id, rw := range raw.Workspaces {
		cat.Workspaces[id] = workspace.Info{
			ID:        id,
			Name:      defaultString(rw.Name, id),
			AbsPath:   filepath.Join(absRoot, rw.Path),
			RelPath:   rw.Path,
			Tags:      rw.Tags,
			DependsOn: rw.DependsOn,
		}
	}

	for id, rtc := range raw.TaskConfigs {
		tasks := make(map[string]workspace.TaskDefinition, len(rtc.Tasks))
		for name, rt := range rtc.Tasks {
			def, err := convertTaskDefinition(rt)
			if err != nil {
				return nil, errors.Wrapf(err, "task %s:%s", id, name)
			}
			tasks[name] = def
		}
		cat.TaskConfigs[id] = workspace.TaskConfig{Tasks: tasks, Env: rtc.Env}
	}

	return cat, nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func convertTaskDefinition(rt rawTaskDefinition) (workspace.TaskDefinition, error) {
	cmd, err := convertCommand(rt.Command)
	if err != nil {
		return workspace.TaskDefinition{}, err
	}
	cleanup, err := convertCleanup(rt.Cleanup)
	if err != nil {
		return workspace.TaskDefinition{}, err
	}
	deps, err := convertDependsOn(rt.DependsOn)
	if err != nil {
		return workspace.TaskDefinition{}, err
	}

	return workspace.TaskDefinition{
		Command:      cmd,
		Description:  rt.Description,
		Env:          rt.Env,
		Inputs:       rt.Inputs,
		Outputs:      rt.Outputs,
		Cleanup:      cleanup,
		Cache:        rt.Cache,
		Cwd:          rt.Cwd,
		AllowFailure: rt.AllowFailure,
		TimeoutMS:    rt.TimeoutMS,
		Platform:     convertPlatform(rt.Platform),
		DependsOn:    deps,
		Persistent:   rt.Persistent,
	}, nil
}

// convertCommand implements the command union from spec §3: a shell
// string, an ordered list of shell strings, or an explicit record.
func convertCommand(v interface{}) (workspace.Command, error) {
	switch val := v.(type) {
	case nil:
		return workspace.Command{}, errors.New("command is required")
	case string:
		return workspace.Command{Kind: workspace.CommandShell, Shell: val}, nil
	case []interface{}:
		list := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return workspace.Command{}, fmt.Errorf("command list entry %d is not a string", i)
			}
			list[i] = s
		}
		return workspace.Command{Kind: workspace.CommandShellList, ShellList: list}, nil
	case map[string]interface{}:
		var explicit struct {
			Program  string   `mapstructure:"program"`
			Args     []string `mapstructure:"args"`
			Cwd      string   `mapstructure:"cwd"`
			UseShell bool     `mapstructure:"shell"`
		}
		if err := mapstructure.Decode(val, &explicit); err != nil {
			return workspace.Command{}, errors.Wrap(err, "decoding explicit command")
		}
		return workspace.Command{
			Kind:     workspace.CommandExplicit,
			Program:  explicit.Program,
			Args:     explicit.Args,
			Cwd:      explicit.Cwd,
			UseShell: explicit.UseShell,
		}, nil
	default:
		return workspace.Command{}, fmt.Errorf("unsupported command shape %T", v)
	}
}

// convertCleanup implements the cleanup union: "outputs" or an explicit
// glob list.
func convertCleanup(v interface{}) (workspace.Cleanup, error) {
	switch val := v.(type) {
	case nil:
		return workspace.Cleanup{Kind: workspace.CleanupNone}, nil
	case string:
		if val != "outputs" {
			return workspace.Cleanup{}, fmt.Errorf("unsupported cleanup string %q", val)
		}
		return workspace.Cleanup{Kind: workspace.CleanupOutputs}, nil
	case []interface{}:
		patterns := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return workspace.Cleanup{}, fmt.Errorf("cleanup pattern %d is not a string", i)
			}
			patterns[i] = s
		}
		return workspace.Cleanup{Kind: workspace.CleanupPatterns, Patterns: patterns}, nil
	default:
		return workspace.Cleanup{}, fmt.Errorf("unsupported cleanup shape %T", v)
	}
}

// convertDependsOn implements TaskRef's union: a raw reference string or
// {task, optional}.
func convertDependsOn(items []interface{}) ([]workspace.Ref, error) {
	refs := make([]workspace.Ref, 0, len(items))
	for i, item := range items {
		switch val := item.(type) {
		case string:
			refs = append(refs, workspace.Ref{Task: val})
		case map[string]interface{}:
			var ref struct {
				Task     string `mapstructure:"task"`
				Optional bool   `mapstructure:"optional"`
			}
			if err := mapstructure.Decode(val, &ref); err != nil {
				return nil, errors.Wrapf(err, "decoding dependsOn entry %d", i)
			}
			refs = append(refs, workspace.Ref{Task: ref.Task, Optional: ref.Optional})
		default:
			return nil, fmt.Errorf("dependsOn entry %d has unsupported shape %T", i, item)
		}
	}
	return refs, nil
}

func convertPlatform(s string) workspace.Platform {
	switch strings.ToLower(s) {
	case "linux":
		return workspace.PlatformLinux
	case "darwin":
		return workspace.PlatformDarwin
	case "win32", "windows":
		return workspace.PlatformWindows
	default:
		return workspace.PlatformAll
	}
}
