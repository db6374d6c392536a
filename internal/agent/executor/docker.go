package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// dockerRunner executes docker jobs through the Docker SDK.
type dockerRunner struct {
	client *client.Client
}

func newDockerRunner() (*dockerRunner, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &dockerRunner{client: cli}, nil
}

// containerWorkspace is where the job's host working directory is
// mounted inside the container.
const containerWorkspace = "/workspace"

func (d *dockerRunner) run(ctx context.Context, spec Spec, workDir string, logs io.Writer) Result {
	// Check if the image exists locally first to save time.
	if _, err := d.client.ImageInspect(ctx, spec.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, spec.Image, image.PullOptions{})
		if err != nil {
			return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("pull image %s: %v", spec.Image, err)}
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	config := &container.Config{
		Image:      spec.Image,
		Cmd:        []string{"sh", "-c", spec.Command},
		Env:        envList(spec.Env),
		WorkingDir: containerWorkspace,
	}
	hostConfig := &container.HostConfig{
		Binds:     binds(spec, workDir),
		Resources: resources(spec),
	}

	created, err := d.client.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("create container: %v", err)}
	}
	defer func() {
		// removal runs on a fresh context so cancelled jobs still clean up
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		d.client.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("start container: %v", err)}
	}

	tail := newTailBuffer(stderrTailBytes)
	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		reader, err := d.client.ContainerLogs(ctx, created.ID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			return
		}
		defer reader.Close()
		stdcopy.StdCopy(logs, io.MultiWriter(logs, tail), reader)
	}()

	statusCh, errCh := d.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		d.stop(created.ID)
		return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("wait for container: %v", err)}
	case status := <-statusCh:
		<-logsDone
		result := Result{ExitCode: int(status.StatusCode)}
		if status.Error != nil {
			result.ErrorMessage = status.Error.Message
		} else if result.ExitCode != 0 {
			result.ErrorMessage = fmt.Sprintf("exit code %d", result.ExitCode)
			if tailStr := tail.String(); tailStr != "" {
				result.ErrorMessage = fmt.Sprintf("exit code %d: %s", result.ExitCode, tailStr)
			}
		}
		return result
	case <-ctx.Done():
		d.stop(created.ID)
		return Result{ExitCode: -1, ErrorMessage: ctx.Err().Error()}
	}
}

// stop asks the container to shut down, with the usual grace period
// before the daemon kills it.
func (d *dockerRunner) stop(containerID string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod+5*time.Second)
	defer cancel()

	grace := int(stopGracePeriod.Seconds())
	d.client.ContainerStop(stopCtx, containerID, container.StopOptions{Timeout: &grace})
}

// binds mounts the job's working directory at the container workspace,
// followed by any extra host:container volumes the job asked for.
func binds(spec Spec, workDir string) []string {
	out := []string{workDir + ":" + containerWorkspace}
	return append(out, spec.Volumes...)
}

// resources maps job limits to container resources, including NVIDIA
// GPU device requests.
func resources(spec Spec) container.Resources {
	res := container.Resources{}
	if spec.CPULimit > 0 {
		res.NanoCPUs = int64(spec.CPULimit) * 1e9
	}
	if spec.MemoryGB > 0 {
		res.Memory = int64(spec.MemoryGB) << 30
	}
	if spec.GPUCount > 0 {
		res.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        spec.GPUCount,
			Capabilities: [][]string{{"gpu"}},
		}}
	}
	return res
}
