// Command seed-mail appends fabricated order emails to the configured IMAP
// mailbox so the full ingest path (poll, parse, match, assign, print) can be
// exercised locally without the ERP. Subjects name routes; bodies follow the
// order grammar the parser reads.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/config"
)

var sampleClients = []string{
	"BAR EL PUERTO", "RESTAURANTE MARISOL", "CAFETERIA LUNA",
	"HOTEL MIRAMAR", "CASA PEPE", "FRUTERIA CARMEN",
}

var sampleProducts = []struct {
	name  string
	unit  string
	price float64
}{
	{"TOMATE PERA", "KG", 1.80},
	{"CEBOLLA DULCE", "KG", 1.10},
	{"PATATA AGRIA", "SACO", 8.90},
	{"LECHUGA ROMANA", "CAJA", 6.40},
	{"PIMIENTO ROJO", "KG", 2.30},
	{"CALABACIN", "KG", 1.60},
	{"NARANJA ZUMO", "CAJA", 9.75},
}

var sampleObservations = []string{
	"", "entregar antes de las 7", "sin cajas de madera", "llamar al llegar",
}

func main() {
	routesFlag := flag.String("routes", "Ruta Norte,Ruta Sur", "comma-separated route subjects")
	perRoute := flag.Int("lotes", 1, "emails to append per route")
	flag.Parse()

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.IMAP.Host == "" || cfg.IMAP.User == "" {
		log.Fatal("IMAP_HOST and IMAP_USER are required")
	}

	var c *client.Client
	if cfg.IMAP.Secure {
		c, err = client.DialTLS(cfg.IMAP.Addr(), nil)
	} else {
		c, err = client.Dial(cfg.IMAP.Addr())
	}
	if err != nil {
		log.Fatalf("dial %s: %v", cfg.IMAP.Addr(), err)
	}
	if err := c.Login(cfg.IMAP.User, cfg.IMAP.Password); err != nil {
		log.Fatalf("login %s: %v", cfg.IMAP.User, err)
	}
	defer c.Logout()

	appended := 0
	for _, route := range strings.Split(*routesFlag, ",") {
		route = strings.TrimSpace(route)
		if route == "" {
			continue
		}
		for i := 0; i < *perRoute; i++ {
			msg := buildOrderEmail(route, cfg.IMAP.User)
			if err := c.Append(cfg.IMAP.Folder, nil, time.Now(), msg); err != nil {
				log.Fatalf("append to %s: %v", cfg.IMAP.Folder, err)
			}
			appended++
		}
	}
	log.Printf("appended %d order email(s) to %s, the server will pick them up on its next poll",
		appended, cfg.IMAP.Folder)
}

// buildOrderEmail fabricates one RFC 5322 message in the order grammar:
// "CLIENTE:" headers, an optional "OBSERVACIONES:" line, then product lines
// of the form "<qty> <unit> - <product> - <price>".
func buildOrderEmail(route, to string) *bytes.Buffer {
	var body []string
	nClients := 1 + rand.Intn(3)
	for i := 0; i < nClients; i++ {
		if i > 0 {
			body = append(body, "----")
		}
		body = append(body, "CLIENTE: "+sampleClients[rand.Intn(len(sampleClients))])
		if obs := sampleObservations[rand.Intn(len(sampleObservations))]; obs != "" {
			body = append(body, "OBSERVACIONES: "+obs)
		}
		nLines := 1 + rand.Intn(4)
		for j := 0; j < nLines; j++ {
			p := sampleProducts[rand.Intn(len(sampleProducts))]
			body = append(body, fmt.Sprintf("%s %s - %s - %s",
				quantity(), p.unit, p.name, decimal(p.price)))
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: ERP Del Sur <pedidos@delsur.local>\r\n")
	fmt.Fprintf(&buf, "To: <%s>\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", route)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@seed-mail>\r\n", uuid.New().String())
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	buf.WriteString(strings.Join(body, "\r\n"))
	buf.WriteString("\r\n")
	return &buf
}

// quantity returns whole amounts mostly, with the occasional comma decimal
// the ERP locale produces.
func quantity() string {
	n := 1 + rand.Intn(5)
	if rand.Intn(4) == 0 {
		return fmt.Sprintf("%d,5", n)
	}
	return fmt.Sprintf("%d", n)
}

// decimal formats a price with the comma separator the ERP emits.
func decimal(v float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}
