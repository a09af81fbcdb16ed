package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"
	"github.com/wfunc/tagserver/network"
)

// gorilla/websocket 只允许一个并发写者
var writeMu sync.Mutex

// send frames and writes a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// command 把一行输入转换为请求
func command(line string) (uint16, interface{}, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, false
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	float := func(i int) float64 {
		f, _ := strconv.ParseFloat(arg(i), 64)
		return f
	}

	switch fields[0] {
	case "create":
		settings := map[string]interface{}{}
		if r := float(1); r > 0 {
			settings["tag_radius"] = r
		}
		return network.MsgTypeCreateGame, map[string]interface{}{"settings": settings}, true
	case "join":
		return network.MsgTypeJoinGame, map[string]string{"code": strings.ToUpper(arg(1))}, true
	case "leave":
		return network.MsgTypeLeaveGame, nil, true
	case "start":
		return network.MsgTypeStartGame, nil, true
	case "end":
		return network.MsgTypeEndGame, nil, true
	case "get":
		return network.MsgTypeGetGame, map[string]string{"game_id": arg(1)}, true
	case "loc":
		return network.MsgTypeLocation, map[string]interface{}{
			"lat":       float(1),
			"lng":       float(2),
			"timestamp": time.Now().UnixMilli(),
		}, true
	case "tag":
		return network.MsgTypeTag, map[string]string{"target_id": arg(1)}, true
	case "check":
		return network.MsgTypeCheckTag, map[string]interface{}{
			"tagger": map[string]float64{"lat": float(1), "lng": float(2)},
			"target": map[string]float64{"lat": float(3), "lng": float(4)},
			"radius": float(5),
		}, true
	}
	return 0, nil, false
}

func main() {
	addr := flag.StringP("addr", "a", "localhost:8080", "server address")
	playerID := flag.StringP("player", "p", "", "player id")
	name := flag.StringP("name", "n", "", "display name")
	flag.Parse()
	if *playerID == "" {
		log.Fatal("--player is required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	q := url.Values{"player_id": {*playerID}, "name": {*name}}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: q.Encode()}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
		}
	}()

	// Heartbeat loop
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
					return
				}
			}
		}
	}()

	log.Println("Commands: create [radius] | join CODE | leave | start | end | get [ID] | loc LAT LNG | tag PLAYER | check LAT LNG LAT LNG RADIUS")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Write loop
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			writeMu.Lock()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			msgID, req, ok := command(line)
			if !ok {
				log.Printf("Unknown command %q", strings.TrimSpace(line))
				continue
			}
			if err := send(c, msgID, req); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT (ID: %d)", msgID)
		}
	}
}
