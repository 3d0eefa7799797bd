package shell

import (
	"errors"
	"testing"

	"github.com/josephlewis42/jobsh/core/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]struct {
		line        string
		wantCommand string
		wantArgv    [][]string
		wantBg      bool
	}{
		"simple": {
			line:        "ls -l /tmp",
			wantCommand: "ls -l /tmp",
			wantArgv:    [][]string{{"ls", "-l", "/tmp"}},
		},
		"pipeline": {
			line:        "echo hi | wc -w",
			wantCommand: "echo hi | wc -w",
			wantArgv:    [][]string{{"echo", "hi"}, {"wc", "-w"}},
		},
		"three-stages": {
			line:        "cat f|sort|uniq -c",
			wantCommand: "cat f | sort | uniq -c",
			wantArgv:    [][]string{{"cat", "f"}, {"sort"}, {"uniq", "-c"}},
		},
		"background": {
			line:        "sleep 10 &",
			wantCommand: "sleep 10",
			wantArgv:    [][]string{{"sleep", "10"}},
			wantBg:      true,
		},
		"quotes": {
			line:        `echo 'a b' "c d" e\ f`,
			wantCommand: `echo 'a b' "c d" e\ f`,
			wantArgv:    [][]string{{"echo", "a b", "c d", "e f"}},
		},
		"double-quote-escapes": {
			line:        `echo "\"x\" \n"`,
			wantCommand: `echo "\"x\" \n"`,
			wantArgv:    [][]string{{"echo", `"x" \n`}},
		},
		"comment": {
			line:        "vim notes.txt # edit",
			wantCommand: "vim notes.txt",
			wantArgv:    [][]string{{"vim", "notes.txt"}},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			jobs, err := Parse(tc.line)
			require.Nil(t, err)
			require.Len(t, jobs, 1)

			j := jobs[0]
			assert.Equal(t, tc.wantCommand, j.Command)
			assert.Equal(t, tc.wantBg, j.Background)

			var argv [][]string
			for _, p := range j.Processes {
				argv = append(argv, p.Argv)
			}
			assert.Equal(t, tc.wantArgv, argv)
		})
	}
}

func TestParse_multipleStatements(t *testing.T) {
	jobs, err := Parse("sleep 100 & echo started; wc -l < in.txt\nls")
	require.Nil(t, err)
	require.Len(t, jobs, 4)

	assert.True(t, jobs[0].Background)
	assert.Equal(t, "echo started", jobs[1].Command)
	assert.Equal(t, "ls", jobs[3].Command)
}

func TestParse_empty(t *testing.T) {
	for _, line := range []string{"", "   ", "# just a comment"} {
		jobs, err := Parse(line)
		assert.Nil(t, err)
		assert.Empty(t, jobs)
	}
}

func TestParse_redirects(t *testing.T) {
	cases := map[string]struct {
		line          string
		wantStage     [][]job.Redirect
		wantJobLevels []job.Redirect
	}{
		"input": {
			line:      "sort < in.txt",
			wantStage: [][]job.Redirect{{{Fd: 0, Mode: job.RedirectRead, Path: "in.txt"}}},
		},
		"output": {
			line:      "ls > out.txt",
			wantStage: [][]job.Redirect{{{Fd: 1, Mode: job.RedirectWrite, Path: "out.txt"}}},
		},
		"append": {
			line:      "ls >> out.txt",
			wantStage: [][]job.Redirect{{{Fd: 1, Mode: job.RedirectAppend, Path: "out.txt"}}},
		},
		"stderr": {
			line:      "make 2> err.txt",
			wantStage: [][]job.Redirect{{{Fd: 2, Mode: job.RedirectWrite, Path: "err.txt"}}},
		},
		"stderr-to-stdout": {
			line:      "make 2>&1",
			wantStage: [][]job.Redirect{{{Fd: 2, Mode: job.RedirectDup, DupFd: 1}}},
		},
		"all": {
			line: "make &> all.txt",
			wantStage: [][]job.Redirect{{
				{Fd: 1, Mode: job.RedirectWrite, Path: "all.txt"},
				{Fd: 2, Mode: job.RedirectDup, DupFd: 1},
			}},
		},
		"dup-to-file": {
			line: "make >& all.txt",
			wantStage: [][]job.Redirect{{
				{Fd: 1, Mode: job.RedirectWrite, Path: "all.txt"},
				{Fd: 2, Mode: job.RedirectDup, DupFd: 1},
			}},
		},
		"pipeline-first-stage": {
			line: "cat < in.txt 2>&1 | sort",
			wantStage: [][]job.Redirect{
				{
					{Fd: 0, Mode: job.RedirectRead, Path: "in.txt"},
					{Fd: 2, Mode: job.RedirectDup, DupFd: 1},
				},
				nil,
			},
		},
		"pipeline-trailing": {
			line:      "cat | sort > out.txt",
			wantStage: [][]job.Redirect{nil, nil},
			wantJobLevels: []job.Redirect{
				{Fd: 1, Mode: job.RedirectWrite, Path: "out.txt"},
			},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			jobs, err := Parse(tc.line)
			require.Nil(t, err)
			require.Len(t, jobs, 1)

			var stages [][]job.Redirect
			for _, p := range jobs[0].Processes {
				stages = append(stages, p.Redirects)
			}
			assert.Equal(t, tc.wantStage, stages)
			assert.Equal(t, tc.wantJobLevels, jobs[0].Redirects)
		})
	}
}

func TestParse_unsupported(t *testing.T) {
	cases := map[string]string{
		"and":           "true && false",
		"or":            "true || false",
		"pipe-all":      "make |& less",
		"negated":       "! true",
		"assignment":    "A=B env",
		"expansion":     "echo $HOME",
		"command-sub":   "echo $(date)",
		"subshell":      "(cd /tmp)",
		"if":            "if true; then echo; fi",
		"fd-3":          "ls 3> out",
		"redirect-only": "> out",
		"dup-fd-3":      "ls 2>&3",
	}

	for tn, line := range cases {
		t.Run(tn, func(t *testing.T) {
			jobs, err := Parse(line)
			assert.Nil(t, jobs)
			if assert.NotNil(t, err) {
				assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
			}
		})
	}
}

func TestParse_syntaxError(t *testing.T) {
	jobs, err := Parse("echo ok; echo 'unterminated")
	assert.Nil(t, jobs, "a line never runs partially")
	if assert.NotNil(t, err) {
		assert.False(t, errors.Is(err, ErrUnsupported))
	}
}
