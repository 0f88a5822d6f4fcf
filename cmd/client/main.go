// Word Quizzle manual test client: a plain line-oriented CLI, not a TUI.
// The teacher's client (chat-go/cmd/client/main.go) is a full bubbletea
// program because a human chat client needs a real UI; spec.md places
// interactive console UX out of scope for Word Quizzle; this client exists
// only so the session protocol, the registration RPC, and the UDP/TCP duel
// handshake are exercisable end to end from a terminal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"strconv"
	"strings"

	"wordquizzle/internal/registration"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8888", "session server address")
	rpcAddr := flag.String("rpc-addr", "127.0.0.1:5678", "registration RPC address")
	udpPort := flag.Int("udp-port", 9000, "local UDP port this client listens on for match invitations")
	flag.Parse()

	c := &client{addr: *addr, rpcAddr: *rpcAddr, udpPort: *udpPort}
	if err := c.run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	addr    string
	rpcAddr string
	udpPort int

	nickname string
	conn     net.Conn
	udpConn  *net.UDPConn
}

func (c *client) run() error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connect session server: %w", err)
	}
	c.conn = conn
	defer conn.Close()

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: c.udpPort})
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	c.udpConn = udpConn
	defer udpConn.Close()

	go c.readReplies()
	go c.listenInvitations()

	fmt.Println("Word Quizzle client. Commands: register, login, logout, add_friend, friend_list, score, scoreboard, match, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !c.handleCommand(strings.TrimSpace(scanner.Text())) {
			break
		}
	}
	return nil
}

func (c *client) handleCommand(line string) (keepGoing bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "register":
		if len(fields) != 3 {
			fmt.Println("usage: register <nickname> <password>")
			return true
		}
		c.register(fields[1], fields[2])
	case "login":
		if len(fields) != 3 {
			fmt.Println("usage: login <nickname> <password>")
			return true
		}
		c.nickname = fields[1]
		c.send(fmt.Sprintf("0 %s %s %d", fields[1], fields[2], c.udpPort))
	case "logout":
		c.send("1")
	case "add_friend":
		if len(fields) != 2 {
			fmt.Println("usage: add_friend <nickname>")
			return true
		}
		c.send("2 " + fields[1])
	case "friend_list":
		c.send("3")
	case "score":
		c.send("4")
	case "scoreboard":
		c.send("5")
	case "match":
		if len(fields) != 2 {
			fmt.Println("usage: match <nickname>")
			return true
		}
		c.send("6 " + fields[1])
	case "quit", "exit":
		return false
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return true
}

func (c *client) send(line string) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		fmt.Fprintln(os.Stderr, "write error:", err)
	}
}

func (c *client) register(nickname, password string) {
	rpcClient, err := rpc.Dial("tcp", c.rpcAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "registration error:", err)
		return
	}
	defer rpcClient.Close()

	var reply string
	args := registration.RegisterArgs{Nickname: nickname, Password: password}
	if err := rpcClient.Call("Service.Register", args, &reply); err != nil {
		fmt.Fprintln(os.Stderr, "registration error:", err)
		return
	}
	fmt.Println(reply)
}

// readReplies prints every line the session server sends, and transparently
// follows a successful match acceptance into the duel protocol.
func (c *client) readReplies() {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Println(line)
		if port, ok := acceptedPort(line); ok {
			go c.playDuel(port)
		}
	}
}

// acceptedPort parses "<friend> accepted your match invitation./<port>" and
// returns the duel port, per spec §4.7 Phase 1.
func acceptedPort(line string) (int, bool) {
	if !strings.Contains(line, "accepted your match invitation./") {
		return 0, false
	}
	idx := strings.LastIndex(line, "/")
	if idx < 0 {
		return 0, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	if err != nil {
		return 0, false
	}
	return port, true
}

// listenInvitations watches this client's declared UDP port for match
// invitations (spec §6's invitation protocol), keeping a table of pending
// invitations keyed by challenger so a repeated invitation from the same
// challenger is not prompted again; a TIMEOUT datagram removes the entry.
// Each new invitation is prompted for and answered Y or N on its own;
// accepting one does not refuse the other pending invitations.
func (c *client) listenInvitations() {
	buf := make([]byte, 256)
	pending := make(map[string]bool)
	for {
		n, remote, err := c.udpConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		payload := strings.TrimSpace(string(buf[:n]))
		if strings.HasPrefix(payload, "TIMEOUT/") {
			challenger := strings.TrimPrefix(payload, "TIMEOUT/")
			delete(pending, challenger)
			continue
		}
		idx := strings.LastIndex(payload, "/")
		if idx < 0 {
			continue
		}
		challenger, portStr := payload[:idx], payload[idx+1:]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		if pending[challenger] {
			continue
		}
		pending[challenger] = true

		fmt.Printf("\n%s has challenged you to a duel! Accept? (y/n): ", challenger)
		reply := "N"
		var answer string
		if _, err := fmt.Scanln(&answer); err == nil && strings.EqualFold(answer, "y") {
			reply = "Y"
		}
		c.udpConn.WriteToUDP([]byte(reply), remote)
		if reply == "Y" {
			go c.playDuel(port)
		}
	}
}

// playDuel connects to the duel's ephemeral TCP port and drives the
// round-by-round exchange from spec §6's duel protocol.
func (c *client) playDuel(port int) {
	host, _, err := net.SplitHostPort(c.addr)
	if err != nil {
		host = c.addr
	}
	duelConn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "duel connect error:", err)
		return
	}
	defer duelConn.Close()

	fmt.Fprintf(duelConn, "START/%s\n", c.nickname)
	scanner := bufio.NewScanner(duelConn)
	stdin := bufio.NewReader(os.Stdin)
	for scanner.Scan() {
		word := scanner.Text()
		if strings.HasPrefix(word, "END/") {
			fmt.Println(strings.TrimPrefix(word, "END/"))
			return
		}
		fmt.Printf("Translate: %s\n> ", word)
		answer, _ := stdin.ReadString('\n')
		answer = strings.TrimSpace(answer)
		fmt.Fprintf(duelConn, "%s/%s\n", answer, c.nickname)
	}
}
