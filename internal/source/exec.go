package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// execProducer shells out to a command that reads a JSON request on stdin
// and writes one JSON fragment per stdout line, mirroring the fragment
// contract of the HTTP producers.
type execProducer struct {
	cmd []string
	mu  sync.Mutex
}

type execFragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

func NewExecProducer(command string) (Producer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse source command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("source command is empty")
	}
	return &execProducer{cmd: args}, nil
}

func (p *execProducer) Stream(ctx context.Context, req Request, consumer func(Fragment) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload := map[string]any{
		"prompt":     req.Prompt,
		"system":     req.System,
		"max_tokens": req.MaxTokens,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := stdin.Write(input); err != nil {
		cmd.Wait()
		return err
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	start := time.Now()
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frag execFragment
		if err := json.Unmarshal(line, &frag); err != nil {
			cmd.Wait()
			return fmt.Errorf("decode source fragment: %w", err)
		}
		if err := consumer(Fragment{
			SessionID: req.SessionID,
			Text:      frag.Text,
			Final:     frag.Final,
			Latency:   time.Since(start),
		}); err != nil {
			cmd.Wait()
			return err
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("source command failed: %w", err)
	}
	return scanner.Err()
}
