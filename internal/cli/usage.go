package cli

import "fmt"

const ShortDescription = "MTProto interception proxy"

func Usage(progname, fullVersion string) string {
	return fmt.Sprintf(
		"usage: %s [-h<host>] [-p<port>] [-k<key>] [-f<keys-file>] [-q] [-o<output-dir>] [--proxy-no-auth] [--proxy-user=<login:password>] [--metrics-addr=<addr>] [--log-file=<path>]\n%s\n\t%s\n\t-h, --host\tlistening host for the SOCKS5 front-end (default 0.0.0.0)\n\t-p, --port\tlistening port (default 1080)\n\t-k, --key\thex-encoded 256-byte authorization key (repeatable)\n\t-f, --keys-file\tpath to newline-delimited hex key file\n\t-q, --quiet\tsuppress per-message log lines\n\t-o, --output\tdirectory session JSON documents are written to\n\t--proxy-no-auth\tdisable SOCKS5 username/password authentication\n\t--proxy-user\tlogin:password SOCKS5 credential entry (repeatable)\n\t--metrics-addr\taddress for the Prometheus metrics/health HTTP server (empty disables it)\n\t--log-file\tpath to the reopenable log file (stderr if unset)\n",
		progname,
		fullVersion,
		ShortDescription,
	)
}
