// Package slurm writes the shell scripts that launch evaluation and
// training runs on a SLURM cluster: a command file plus either an
// sbatch script or an srun-under-screen pair, in numbered job
// directories.
package slurm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// JobSpec describes one cluster job.
type JobSpec struct {
	Command       string
	JobName       string
	QOS           string
	Partition     string
	NumGPUs       int
	CPUsPerGPU    int
	MemPerGPUGB   int
	RuntimeMins   int
	ContainerPath string
	DatasetsMount string
	NodeExclude   []string
}

// FormatRuntime renders a runtime in minutes as the HH:MM:00 form
// sbatch and srun expect.
func FormatRuntime(runtimeMins int) string {
	hours := runtimeMins / 60
	minutes := runtimeMins % 60
	return fmt.Sprintf("%02d:%02d:00", hours, minutes)
}

// NextJobDir creates and returns the next numbered job directory under
// baseDir, counting existing entries the way prior launches did.
func NextJobDir(baseDir string) (string, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", fmt.Errorf("create job base dir: %w", err)
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", fmt.Errorf("read job base dir: %w", err)
	}
	jobDir := filepath.Join(baseDir, fmt.Sprintf("%06d", len(entries)))
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	return jobDir, nil
}

// FilterNodes returns the nodes whose names contain substring. Used to
// build the exclude list from sinfo output.
func FilterNodes(nodes []string, substring string) []string {
	if substring == "" {
		return nil
	}
	var matched []string
	for _, node := range nodes {
		node = strings.TrimSpace(node)
		if node != "" && strings.Contains(node, substring) {
			matched = append(matched, node)
		}
	}
	return matched
}

var commandTmpl = template.Must(template.New("command").Parse(`#!/bin/bash
{{.Command}}
`))

var sbatchTmpl = template.Must(template.New("sbatch").Parse(`#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --qos={{.QOS}}
#SBATCH --partition={{.Partition}}
#SBATCH --nodes=1
#SBATCH --output={{.JobDir}}/job.out
#SBATCH --error={{.JobDir}}/job.err
#SBATCH --time={{.Runtime}}
#SBATCH --gpus={{.NumGPUs}}
#SBATCH --mem-per-gpu={{.MemPerGPUGB}}G
#SBATCH --cpus-per-gpu={{.CPUsPerGPU}}
#SBATCH --exclude={{.Exclude}}
{{- if .ContainerPath}}
#SBATCH --container-mounts={{.DatasetsMount}}:/efs/,{{.WorkDir}}:/project
#SBATCH --container-image={{.ContainerPath}}
{{- end}}

bash {{.JobDir}}/command.sh && echo 'done' > {{.JobDir}}/job.done
`))

var srunTmpl = template.Must(template.New("srun").Parse(`#!/bin/bash
srun --gpus={{.NumGPUs}} --nodes=1 --mem-per-gpu={{.MemPerGPUGB}}G --cpus-per-gpu={{.CPUsPerGPU}} --time={{.Runtime}} --exclude={{.Exclude}} --job-name={{.JobName}} --qos={{.QOS}} --partition={{.Partition}}{{if .ContainerPath}} --container-mounts={{.DatasetsMount}}:/efs/,{{.WorkDir}}:/project --container-image={{.ContainerPath}}{{end}} bash {{.JobDir}}/command.sh
`))

var screenTmpl = template.Must(template.New("screen").Parse(`#!/bin/bash
screen -L -Logfile {{.JobDir}}/stdout.log -dmS {{.JobName}} bash {{.JobDir}}/srun.sh
`))

type templateArgs struct {
	JobSpec
	JobDir  string
	WorkDir string
	Runtime string
	Exclude string
}

// WriteScripts renders the launch scripts for spec into jobDir. With
// useSrun it writes srun.sh and screen.sh; otherwise sbatch.bash. The
// command file is always written. Returns the script to invoke.
func WriteScripts(jobDir string, spec JobSpec, useSrun bool) (string, error) {
	if spec.Command == "" {
		return "", fmt.Errorf("job command must not be empty")
	}
	workDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working dir: %w", err)
	}
	args := templateArgs{
		JobSpec: spec,
		JobDir:  jobDir,
		WorkDir: workDir,
		Runtime: FormatRuntime(spec.RuntimeMins),
		Exclude: strings.Join(spec.NodeExclude, ","),
	}

	if err := renderTo(filepath.Join(jobDir, "command.sh"), commandTmpl, args); err != nil {
		return "", err
	}

	if useSrun {
		if err := renderTo(filepath.Join(jobDir, "srun.sh"), srunTmpl, args); err != nil {
			return "", err
		}
		screenPath := filepath.Join(jobDir, "screen.sh")
		if err := renderTo(screenPath, screenTmpl, args); err != nil {
			return "", err
		}
		return screenPath, nil
	}

	sbatchPath := filepath.Join(jobDir, "sbatch.bash")
	if err := renderTo(sbatchPath, sbatchTmpl, args); err != nil {
		return "", err
	}
	return sbatchPath, nil
}

func renderTo(path string, tmpl *template.Template, args templateArgs) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := tmpl.Execute(f, args); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return nil
}
