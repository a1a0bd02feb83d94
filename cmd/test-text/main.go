// Text REPL against the relay's chat endpoint.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/spoc-ai/voicebridge/chat"
)

type chatRequest struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Relay base URL")
	flag.Parse()

	httpClient := &http.Client{Timeout: 60 * time.Second}
	var history []chat.Turn

	fmt.Println("Type a message, Ctrl+D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := scanner.Text()
		if message == "" {
			continue
		}

		body, err := sonic.Marshal(chatRequest{Message: message, History: history})
		if err != nil {
			log.Fatalf("Encoding request: %v", err)
		}

		resp, err := httpClient.Post(*serverURL+"/api/chat", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("❌ Request failed: %v", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("❌ Reading response: %v", err)
			continue
		}

		var reply chatResponse
		if err := sonic.Unmarshal(data, &reply); err != nil {
			log.Printf("❌ Parsing response: %v", err)
			continue
		}
		if reply.Error != "" {
			log.Printf("❌ %s", reply.Error)
			continue
		}

		fmt.Printf("💬 %s\n", reply.Reply)
		history = append(history,
			chat.Turn{Role: "user", Text: message},
			chat.Turn{Role: "model", Text: reply.Reply},
		)
	}
}
