// Command launch writes SLURM scripts for an evaluation or training
// run into a numbered job directory and submits the job, either on this
// machine or on a remote cluster login node over SSH.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jykim94/SceneFlowZoo/internal/deploy"
	"github.com/jykim94/SceneFlowZoo/internal/slurm"
)

func main() {
	var (
		jobDir       string
		numGPUs      int
		cpusPerGPU   int
		memPerGPU    int
		runtimeMins  int
		runtimeHours int
		jobName      string
		qos          string
		partition    string
		container    string
		datasets     string
		blacklistSub string
		remote       string
		sshUser      string
		sshKey       string
		dryRun       bool
		useSrun      bool
		verbose      bool
	)

	flag.StringVar(&jobDir, "job-dir", "./job_dir/", "base directory for numbered job dirs")
	flag.IntVar(&numGPUs, "num-gpus", 1, "GPUs per job")
	flag.IntVar(&cpusPerGPU, "cpus-per-gpu", 2, "CPUs per GPU")
	flag.IntVar(&memPerGPU, "mem-per-gpu", 12, "memory per GPU in GB")
	flag.IntVar(&runtimeMins, "runtime-mins", 180, "job runtime in minutes")
	flag.IntVar(&runtimeHours, "runtime-hours", 0, "job runtime in hours (overrides runtime-mins)")
	flag.StringVar(&jobName, "job-name", "sceneflow", "SLURM job name")
	flag.StringVar(&qos, "qos", "ee-med", "SLURM QOS")
	flag.StringVar(&partition, "partition", "eaton-compute", "SLURM partition")
	flag.StringVar(&container, "container", "", "container squash file (optional)")
	flag.StringVar(&datasets, "datasets-mount", "../../datasets/", "host path mounted at /efs/ in the container")
	flag.StringVar(&blacklistSub, "blacklist-substring", "", "exclude nodes whose names contain this substring")
	flag.StringVar(&remote, "remote", "", "submit on this host over SSH instead of locally (user@host or ssh config alias)")
	flag.StringVar(&sshUser, "ssh-user", "", "SSH user for -remote (default: from ssh config)")
	flag.StringVar(&sshKey, "ssh-key", "", "SSH identity file for -remote (default: from ssh config)")
	flag.BoolVar(&dryRun, "dry-run", false, "write scripts without submitting the job")
	flag.BoolVar(&useSrun, "use-srun", false, "launch with srun under screen instead of sbatch")
	flag.BoolVar(&verbose, "verbose", false, "log executed commands")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: launch [flags] <command>")
	}
	command := flag.Arg(0)

	if runtimeHours > 0 {
		runtimeMins = runtimeHours * 60
	}

	executor, err := newExecutor(remote, sshUser, sshKey, dryRun)
	if err != nil {
		log.Fatalf("resolve submission target: %v", err)
	}
	if verbose {
		executor.SetLogger(logPrinter{})
	}

	var exclude []string
	if blacklistSub != "" {
		nodes, err := availableNodes(executor)
		if err != nil {
			log.Fatalf("list cluster nodes: %v", err)
		}
		exclude = slurm.FilterNodes(nodes, blacklistSub)
		fmt.Printf("Blacklisting nodes with substring %s: %v\n", blacklistSub, exclude)
	}

	dir, err := slurm.NextJobDir(jobDir)
	if err != nil {
		log.Fatalf("create job dir: %v", err)
	}

	spec := slurm.JobSpec{
		Command:       command,
		JobName:       jobName,
		QOS:           qos,
		Partition:     partition,
		NumGPUs:       numGPUs,
		CPUsPerGPU:    cpusPerGPU,
		MemPerGPUGB:   memPerGPU,
		RuntimeMins:   runtimeMins,
		ContainerPath: container,
		DatasetsMount: datasets,
		NodeExclude:   exclude,
	}

	script, err := slurm.WriteScripts(dir, spec, useSrun)
	if err != nil {
		log.Fatalf("write scripts: %v", err)
	}
	fmt.Printf("Config files written to %s\n", dir)

	if !executor.IsLocal() {
		if err := pushJobDir(executor, dir); err != nil {
			log.Fatalf("copy job dir to %s: %v", remote, err)
		}
	}

	submit := fmt.Sprintf("sbatch %s", script)
	if useSrun {
		submit = fmt.Sprintf("bash %s", script)
	}
	if dryRun {
		fmt.Printf("RUN COMMAND: %s\n", submit)
		return
	}

	out, err := executor.Run(submit)
	if err != nil {
		log.Fatalf("submit job: %v\n%s", err, out)
	}
	fmt.Print(out)
}

// newExecutor builds the submission executor, resolving remote targets
// through the user's SSH config.
func newExecutor(remote, sshUser, sshKey string, dryRun bool) (*deploy.Executor, error) {
	if remote == "" {
		return deploy.NewExecutor("", "", "", "", dryRun), nil
	}
	host, user, key, agent, err := deploy.ResolveSSHTarget(remote, sshUser, sshKey)
	if err != nil {
		return nil, err
	}
	return deploy.NewExecutor(host, user, key, agent, dryRun), nil
}

// pushJobDir mirrors the generated job directory onto the remote login
// node so relative script paths work there too.
func pushJobDir(e *deploy.Executor, dir string) error {
	if _, err := e.Run(fmt.Sprintf("mkdir -p %s", dir)); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.CopyFile(path, path); err != nil {
			return err
		}
	}
	return nil
}

// availableNodes lists cluster node names via sinfo on the submission
// target.
func availableNodes(e *deploy.Executor) ([]string, error) {
	out, err := e.Run("sinfo --Node --noheader --format %N")
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSpace(out), "\n"), nil
}

type logPrinter struct{}

func (logPrinter) Debugf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
