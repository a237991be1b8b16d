package cli

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	ErrKeyTooShort = errors.New("authorization key must be exactly 256 bytes (512 hex chars)")
)

const (
	maxKeys        = 64
	maxProxyUsers  = 64
	defaultHost    = "0.0.0.0"
	defaultPort    = 1080
	keyHexChars    = 512
)

type ProxyCredential struct {
	Login    string
	Password string
}

type Options struct {
	ShowHelp bool

	Host string
	Port int

	Keys     [][]byte
	KeysFile string

	Quiet      bool
	OutputDir  string

	ProxyNoAuth bool
	ProxyUsers  []ProxyCredential

	MetricsAddr string
	LogFile     string
}

func Parse(args []string) (Options, error) {
	opts := Options{
		Host: defaultHost,
		Port: defaultPort,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "--") && len(arg) > 2 {
			name, value, hasValue := splitLongOption(arg[2:])
			if err := parseLongOption(&opts, name, value, hasValue, args, &i); err != nil {
				return Options{}, err
			}
			continue
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			if err := parseShortOptions(&opts, arg[1:], args, &i); err != nil {
				return Options{}, err
			}
			continue
		}

		return Options{}, fmt.Errorf("unexpected positional argument %q", arg)
	}

	if len(opts.Keys) > maxKeys {
		return Options{}, fmt.Errorf("too many -k/--key values: %d (max %d)", len(opts.Keys), maxKeys)
	}
	if len(opts.ProxyUsers) > maxProxyUsers {
		return Options{}, fmt.Errorf("too many --proxy-user values: %d (max %d)", len(opts.ProxyUsers), maxProxyUsers)
	}
	if opts.ProxyNoAuth && len(opts.ProxyUsers) > 0 {
		return Options{}, fmt.Errorf("--proxy-no-auth and --proxy-user are mutually exclusive")
	}

	return opts, nil
}

func splitLongOption(raw string) (name, value string, hasValue bool) {
	if p := strings.IndexByte(raw, '='); p >= 0 {
		return raw[:p], raw[p+1:], true
	}
	return raw, "", false
}

func parseLongOption(opts *Options, name, value string, hasValue bool, args []string, i *int) error {
	switch name {
	case "help":
		if err := noValueExpected(name, hasValue); err != nil {
			return err
		}
		opts.ShowHelp = true
		return nil
	case "host":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		opts.Host = v
		return nil
	case "port":
		return parseLongInt(name, value, hasValue, &opts.Port, args, i)
	case "key":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		return addKey(opts, v)
	case "keys-file":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		opts.KeysFile = v
		return nil
	case "quiet":
		if err := noValueExpected(name, hasValue); err != nil {
			return err
		}
		opts.Quiet = true
		return nil
	case "output":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		opts.OutputDir = v
		return nil
	case "proxy-no-auth":
		if err := noValueExpected(name, hasValue); err != nil {
			return err
		}
		opts.ProxyNoAuth = true
		return nil
	case "proxy-user":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		return addProxyUser(opts, v)
	case "metrics-addr":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		opts.MetricsAddr = v
		return nil
	case "log-file":
		v, err := longValue(name, value, hasValue, args, i)
		if err != nil {
			return err
		}
		opts.LogFile = v
		return nil
	default:
		return fmt.Errorf("unrecognized option --%s", name)
	}
}

func noValueExpected(name string, hasValue bool) error {
	if hasValue {
		return fmt.Errorf("option --%s does not take a value", name)
	}
	return nil
}

func parseShortOptions(opts *Options, body string, args []string, i *int) error {
	for p := 0; p < len(body); p++ {
		switch body[p] {
		case 'h':
			v, consumed, err := shortValue("h", body, p, args, i)
			if err != nil {
				return err
			}
			opts.Host = v
			if consumed {
				p = len(body)
			}
			return nil
		case 'p':
			v, consumed, err := shortValue("p", body, p, args, i)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid -p value: %w", err)
			}
			opts.Port = n
			if consumed {
				p = len(body)
			}
			return nil
		case 'k':
			v, consumed, err := shortValue("k", body, p, args, i)
			if err != nil {
				return err
			}
			if err := addKey(opts, v); err != nil {
				return err
			}
			if consumed {
				p = len(body)
			}
			return nil
		case 'f':
			v, consumed, err := shortValue("f", body, p, args, i)
			if err != nil {
				return err
			}
			opts.KeysFile = v
			if consumed {
				p = len(body)
			}
			return nil
		case 'q':
			opts.Quiet = true
		case 'o':
			v, consumed, err := shortValue("o", body, p, args, i)
			if err != nil {
				return err
			}
			opts.OutputDir = v
			if consumed {
				p = len(body)
			}
			return nil
		default:
			return fmt.Errorf("unrecognized option -%c", body[p])
		}
	}
	return nil
}

func shortValue(name, body string, p int, args []string, i *int) (string, bool, error) {
	if p+1 < len(body) {
		return body[p+1:], true, nil
	}
	if *i+1 >= len(args) {
		return "", false, fmt.Errorf("option -%s requires a value", name)
	}
	*i += 1
	return args[*i], false, nil
}

func longValue(name, value string, hasValue bool, args []string, i *int) (string, error) {
	if hasValue {
		return value, nil
	}
	if *i+1 >= len(args) {
		return "", fmt.Errorf("option --%s requires a value", name)
	}
	*i += 1
	return args[*i], nil
}

func parseLongInt(name, value string, hasValue bool, target *int, args []string, i *int) error {
	raw, err := longValue(name, value, hasValue, args, i)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid --%s value: %w", name, err)
	}
	*target = n
	return nil
}

func addKey(opts *Options, raw string) error {
	if len(opts.Keys) >= maxKeys {
		return fmt.Errorf("too many -k/--key values (max %d)", maxKeys)
	}
	key, err := parseHexKey(raw)
	if err != nil {
		return fmt.Errorf("invalid -k/--key value: %w", err)
	}
	opts.Keys = append(opts.Keys, key)
	return nil
}

func parseHexKey(raw string) ([]byte, error) {
	if len(raw) != keyHexChars {
		return nil, ErrKeyTooShort
	}
	out := make([]byte, keyHexChars/2)
	if _, err := hex.Decode(out, []byte(raw)); err != nil {
		return nil, fmt.Errorf("not a valid hex string")
	}
	return out, nil
}

func addProxyUser(opts *Options, raw string) error {
	p := strings.IndexByte(raw, ':')
	if p < 0 {
		return fmt.Errorf("invalid --proxy-user value %q, expected login:password", raw)
	}
	opts.ProxyUsers = append(opts.ProxyUsers, ProxyCredential{
		Login:    raw[:p],
		Password: raw[p+1:],
	})
	return nil
}

// LoadKeysFile reads a newline-delimited hex key file, ignoring blank lines
// and lines starting with '#'.
func LoadKeysFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open keys file %q: %w", path, err)
	}
	defer f.Close()

	var keys [][]byte
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, err := parseHexKey(line)
		if err != nil {
			return nil, fmt.Errorf("keys file %q: %w", path, err)
		}
		keys = append(keys, key)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed reading keys file %q: %w", path, err)
	}
	return keys, nil
}
