package main

import (
	"flag"
	"log"
	"os"
	"reflect"

	"golang.org/x/net/websocket"

	"github.com/robotalks/iris/pkg/downlink/mqtt"
	"github.com/robotalks/iris/pkg/downlink/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/iris/"
	wsURL   string
)

func init() {
	if val := os.Getenv("IRIS_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&wsURL, "ws", wsURL, "Websocket downlink URL, e.g. ws://iris:8080/downlink, instead of MQTT.")
}

func printPacket(source string, payload []byte) {
	typed, err := msgs.DecodeTyped(payload)
	if err != nil {
		log.Printf("%s: bad message: %v", source, err)
		return
	}
	msg, err := typed.Decode()
	if err != nil {
		log.Printf("%s: decode error: (type_id=%x) %v", source, typed.TypeId, err)
		return
	}
	log.Printf("%s: [%s] %s", source,
		reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
		msg.Serializable().String())
}

func watchWebsocket() {
	conn, err := websocket.Dial(wsURL, "", "http://localhost/")
	if err != nil {
		log.Fatalln(err)
	}
	defer conn.Close()
	for {
		var pkt []byte
		if err := websocket.Message.Receive(conn, &pkt); err != nil {
			log.Fatalln(err)
		}
		printPacket(wsURL, pkt)
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	if wsURL != "" {
		watchWebsocket()
		return
	}

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Sub("#", mqtt.Handler(printPacket))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
