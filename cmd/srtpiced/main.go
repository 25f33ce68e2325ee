package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	goflag "flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/srtpice/internal/ice"
	"github.com/lanikai/srtpice/internal/srtp"
)

// srtpiced is a manual-exchange demo: it gathers local ICE candidates,
// prints them (and this side's ufrag/pwd) for the operator to relay to
// a peer running the same tool, reads the peer's credentials and
// candidates back from stdin, then runs connectivity checks and
// protects a handful of RTP packets over the winning candidate pair.
func main() {
	flag.Parse()

	// The ice package reads its STUN server and IPv6 settings from the
	// standard flag set; forward the values given on the command line.
	if flagSTUNAddress != "" {
		goflag.Set("stunServer", flagSTUNAddress)
	}
	if flagEnableIPv6 {
		goflag.Set("6", "true")
	}

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	if err := run(); err != nil {
		log.Fatalf("srtpiced: %+v", err)
	}
}

func run() error {
	ufrag, pwd := flagUfrag, flagPassword
	if ufrag == "" || pwd == "" {
		ufrag, pwd = ice.GenerateCredentials()
	}

	suite, err := srtp.ParseSuite(flagSuite)
	if err != nil {
		return errors.Wrapf(err, "unrecognized suite %q", flagSuite)
	}
	keyLen, err := suite.KeyLen()
	if err != nil {
		return errors.Wrap(err, "determine key length")
	}
	key, err := loadOrGenerateKey(flagKeyHex, keyLen)
	if err != nil {
		return errors.Wrap(err, "load SRTP master key")
	}

	done := make(chan error, 1)
	agent := ice.NewAgent(ice.Controlling, randomTiebreaker(), ufrag, pwd, func(role ice.Role, err error) {
		done <- err
	})
	agent.SetMid("0")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var gathered []ice.Candidate
	if err := agent.GatherLocalCandidates(ctx, flagComponent, func(c ice.Candidate) {
		gathered = append(gathered, c)
		fmt.Printf("candidate: %s\n", c.String())
	}); err != nil {
		return errors.Wrap(err, "gather local candidates")
	}
	if len(gathered) == 0 {
		return errors.New("no local candidates gathered")
	}

	fmt.Printf("\nice-ufrag: %s\nice-pwd: %s\n\n", ufrag, pwd)
	fmt.Println("Paste the peer's ice-ufrag, ice-pwd, and candidate lines below,")
	fmt.Println("then a blank line to start connectivity checks:")

	remoteUfrag, remotePwd, remoteCandidates, err := readPeerInfo(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "read peer info")
	}
	agent.SetRemoteCredentials(remoteUfrag, remotePwd)
	for _, desc := range remoteCandidates {
		if err := agent.AddRemoteCandidate(flagComponent, desc); err != nil {
			return errors.Wrapf(err, "add remote candidate %q", desc)
		}
	}

	if err := agent.ConnCheckStart(ctx); err != nil {
		return errors.Wrap(err, "start connectivity checks")
	}

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "connectivity checks failed")
		}
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "connectivity checks timed out")
	}

	conn, ok := agent.Conn(flagComponent)
	if !ok {
		return errors.New("no connection available after successful checks")
	}
	defer conn.Close()

	sctx, err := srtp.NewContext(suite, key, srtp.Flags{})
	if err != nil {
		return errors.Wrap(err, "create SRTP context")
	}

	log.Printf("connected, protecting RTP over %s", conn.RemoteAddr())
	return sendDemoPackets(conn, sctx)
}

// sendDemoPackets protects and writes a handful of RTP packets over conn,
// demonstrating the SRTP context wired to a selected ICE candidate pair.
func sendDemoPackets(conn interface {
	Write([]byte) (int, error)
}, sctx *srtp.Context) error {
	const ssrc = 0x1234abcd
	for seq := uint16(0); seq < 5; seq++ {
		pkt := make([]byte, 12+4)
		pkt[0] = 0x80
		pkt[1] = 96
		pkt[2] = byte(seq >> 8)
		pkt[3] = byte(seq)
		pkt[8] = byte(ssrc >> 24)
		pkt[9] = byte(ssrc >> 16)
		pkt[10] = byte(ssrc >> 8)
		pkt[11] = byte(ssrc)
		copy(pkt[12:], "ping")

		protected, err := sctx.EncryptRTP(pkt)
		if err != nil {
			return errors.Wrapf(err, "encrypt RTP packet %d", seq)
		}
		if _, err := conn.Write(protected); err != nil {
			return errors.Wrapf(err, "write RTP packet %d", seq)
		}
	}
	return nil
}

func loadOrGenerateKey(hexKey string, keyLen int) ([]byte, error) {
	if hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, errors.Wrap(err, "decode hex key")
		}
		if len(key) != keyLen {
			return nil, errors.Errorf("key must be %d bytes, got %d", keyLen, len(key))
		}
		return key, nil
	}

	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generate random key")
	}
	fmt.Printf("srtp-key: %s\n", hex.EncodeToString(key))
	return key, nil
}

func randomTiebreaker() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// readPeerInfo reads "ice-ufrag: ...", "ice-pwd: ...", and "candidate: ..."
// lines from r until a blank line or EOF.
func readPeerInfo(r *os.File) (ufrag, pwd string, candidates []string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		switch {
		case strings.HasPrefix(line, "ice-ufrag:"):
			ufrag = strings.TrimSpace(strings.TrimPrefix(line, "ice-ufrag:"))
		case strings.HasPrefix(line, "ice-pwd:"):
			pwd = strings.TrimSpace(strings.TrimPrefix(line, "ice-pwd:"))
		case strings.HasPrefix(line, "candidate:"):
			candidates = append(candidates, strings.TrimSpace(strings.TrimPrefix(line, "candidate:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", nil, err
	}
	if ufrag == "" || pwd == "" {
		return "", "", nil, errors.New("missing peer ice-ufrag/ice-pwd")
	}
	return ufrag, pwd, candidates, nil
}
