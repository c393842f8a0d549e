package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/K-rangeR/hashdb/core"
)

// ParseScenario reads a line-oriented scenario and compiles it into stages:
//
//	put <key> <value>      store value under key
//	get <key> <value>      expect value under key
//	absent <key>           expect key to be missing
//	del <key>              delete key
//	reopen                 close and reopen the database
//
// Values run to the end of the line. Blank lines and lines starting with
// '#' are skipped.
func ParseScenario(r io.Reader) ([]Stage, error) {
	var stages []Stage

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		stage, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		stages = append(stages, stage)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	return stages, nil
}

func parseLine(line string) (Stage, error) {
	op, rest, _ := strings.Cut(line, " ")

	switch op {
	case "put":
		key, val, err := keyAndArg(rest)
		if err != nil {
			return Stage{}, err
		}
		if val == "" {
			return Stage{}, errors.New("put needs a value")
		}
		return Stage{
			Name: line,
			Run: func(env *Env) error {
				return env.DB.Put(key, []byte(val))
			},
		}, nil

	case "get":
		key, want, err := keyAndArg(rest)
		if err != nil {
			return Stage{}, err
		}
		if want == "" {
			return Stage{}, errors.New("get needs an expected value")
		}
		return Stage{
			Name: line,
			Run: func(env *Env) error {
				val, err := env.DB.Get(key)
				if err != nil {
					return err
				}
				if !bytes.Equal(val, []byte(want)) {
					return fmt.Errorf("key %d: got %q, want %q", key, val, want)
				}
				return nil
			},
		}, nil

	case "absent":
		key, extra, err := keyAndArg(rest)
		if err != nil {
			return Stage{}, err
		}
		if extra != "" {
			return Stage{}, errors.New("absent takes only a key")
		}
		return Stage{
			Name: line,
			Run: func(env *Env) error {
				_, err := env.DB.Get(key)
				if errors.Is(err, core.ErrKeyNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				return fmt.Errorf("key %d: present, want absent", key)
			},
		}, nil

	case "del":
		key, extra, err := keyAndArg(rest)
		if err != nil {
			return Stage{}, err
		}
		if extra != "" {
			return Stage{}, errors.New("del takes only a key")
		}
		return Stage{
			Name: line,
			Run: func(env *Env) error {
				return env.DB.Delete(key)
			},
		}, nil

	case "reopen":
		if rest != "" {
			return Stage{}, errors.New("reopen takes no arguments")
		}
		return Stage{
			Name: line,
			Run:  func(env *Env) error { return env.Reopen() },
		}, nil

	default:
		return Stage{}, fmt.Errorf("unknown op %q", op)
	}
}

// keyAndArg splits "key rest-of-line" and parses the key.
func keyAndArg(s string) (int32, string, error) {
	keyStr, arg, _ := strings.Cut(s, " ")
	if keyStr == "" {
		return 0, "", errors.New("missing key")
	}
	key, err := strconv.ParseInt(keyStr, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("bad key %q: %w", keyStr, err)
	}
	return int32(key), arg, nil
}
