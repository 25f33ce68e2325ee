package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagSTUNAddress   string
	flagEnableIPv6    bool
	flagComponent     int
	flagUfrag         string
	flagPassword      string
	flagRemoteUfrag   string
	flagRemotePassword string
	flagSuite         string
	flagKeyHex        string
	flagHelp          bool
	flagVersion       bool
)

func init() {
	flag.StringVarP(&flagSTUNAddress, "stun-server", "s", "", "STUN server address (host:port) used to gather a server-reflexive candidate")
	flag.BoolVarP(&flagEnableIPv6, "6", "6", false, "Permit use of IPv6 host candidates (default: IPv4 only)")
	flag.IntVarP(&flagComponent, "component", "c", 1, "ICE component ID")
	flag.StringVarP(&flagUfrag, "ufrag", "u", "", "Local ice-ufrag (default: generated)")
	flag.StringVarP(&flagPassword, "pwd", "p", "", "Local ice-pwd (default: generated)")
	flag.StringVarP(&flagRemoteUfrag, "remote-ufrag", "", "", "Peer's ice-ufrag, learned out of band")
	flag.StringVarP(&flagRemotePassword, "remote-pwd", "", "", "Peer's ice-pwd, learned out of band")
	flag.StringVarP(&flagSuite, "suite", "", "AES_CM_128_HMAC_SHA1_80", "SRTP crypto suite")
	flag.StringVarP(&flagKeyHex, "key", "k", "", "Hex-encoded SRTP master key+salt, shared out of band (default: generated)")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Demo tool for SRTP/SRTCP media security and ICE connectivity

Usage: srtpiced [OPTION]...

Network:
  -6                       Permit use of IPv6 host candidates
  -c, --component=NUM      ICE component ID (default: 1)
  -s, --stun-server=ADDR   STUN server address for server-reflexive gathering

ICE credentials:
  -u, --ufrag=STR          Local ice-ufrag (default: generated)
  -p, --pwd=STR            Local ice-pwd (default: generated)
      --remote-ufrag=STR   Peer's ice-ufrag
      --remote-pwd=STR     Peer's ice-pwd

SRTP:
      --suite=NAME         Crypto suite (default: AES_CM_128_HMAC_SHA1_80)
  -k, --key=HEX            Hex-encoded master key+salt (default: generated)

Miscellaneous:
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits`

func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//          _         _          _
	//  ___ _ _| |_ _ __ (_)__ ___ __| |
	// (_-< '_|  _| '_ \| / _/ -_) _` |
	// /__/_|  \__| .__/|_\__\___\__,_|
	//            |_|

	r.Printf("  ___ ")
	y.Printf("_ _")
	b.Printf("| |_ ")
	y.Printf("_ __ ")
	r.Printf(" _ ")
	y.Printf("__ ")
	b.Printf("___ ")
	y.Printf("__ ")
	r.Println("_| |")

	r.Printf(" (_-<")
	y.Printf(" '_|")
	b.Printf("  _|")
	y.Printf(" '_ \\")
	r.Printf("| |")
	y.Printf(" _/")
	b.Printf(" -_)")
	y.Printf(" _`")
	r.Println(" |")

	r.Printf(" /__/")
	y.Printf("_|")
	b.Printf("  \\__|")
	y.Printf(" .__/")
	r.Printf("|_|")
	y.Printf("\\__")
	b.Printf("\\___")
	y.Printf("\\__,")
	r.Println("_|")

	fmt.Println()
	fmt.Println(helpString)
}

func version() {
	fmt.Println("srtpiced (srtpice) development build")
}
