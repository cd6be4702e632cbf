package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var roomsBrokerURL string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Discover and advertise rooms on a broker's HTTP endpoint",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active rooms",
	RunE:  runRoomsList,
}

var (
	roomsCreateName       string
	roomsCreateMaxPlayers int
)

var roomsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Advertise a new room and print its generated code",
	RunE:  runRoomsCreate,
}

func init() {
	roomsCmd.PersistentFlags().StringVar(&roomsBrokerURL, "broker", "http://localhost:7777", "broker base URL")
	roomsCreateCmd.Flags().StringVar(&roomsCreateName, "name", "lobby", "room display name")
	roomsCreateCmd.Flags().IntVar(&roomsCreateMaxPlayers, "max-players", 8, "max players allowed")
	roomsCmd.AddCommand(roomsListCmd, roomsCreateCmd)
}

func roomsURL() string {
	return strings.TrimRight(roomsBrokerURL, "/") + "/rooms"
}

func runRoomsList(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(roomsURL())
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list rooms: broker returned %s", resp.Status)
	}

	var rooms []struct {
		Code       string `json:"code"`
		Name       string `json:"name"`
		Players    int    `json:"players"`
		MaxPlayers int    `json:"max_players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return fmt.Errorf("decode room list: %w", err)
	}

	if len(rooms) == 0 {
		fmt.Println("no active rooms")
		return nil
	}
	for _, r := range rooms {
		fmt.Printf("%s  %-20s %d/%d\n", r.Code, r.Name, r.Players, r.MaxPlayers)
	}
	return nil
}

func runRoomsCreate(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"max_players"`
	}{Name: roomsCreateName, MaxPlayers: roomsCreateMaxPlayers})
	if err != nil {
		return err
	}

	resp, err := http.Post(roomsURL(), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create room: broker returned %s", resp.Status)
	}

	var room struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return fmt.Errorf("decode created room: %w", err)
	}

	fmt.Println(room.Code)
	return nil
}
