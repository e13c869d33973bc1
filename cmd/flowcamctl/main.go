package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"text/tabwriter"

	"github.com/abihf/flowimg/config"
	"github.com/abihf/flowimg/protocol"
)

func main() {
	socket := flag.String("socket", "", "control socket (default: from config)")
	flag.Parse()

	addr := *socket
	if addr == "" {
		addr = config.Load().Socket
	}

	conn, err := net.Dial("unix", addr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := protocol.WriteStatusReq(conn); err != nil {
		log.Fatal(err)
	}
	res, err := protocol.ReadRes(conn)
	if err != nil {
		log.Fatal(err)
	}
	st, err := protocol.ToStatusReport(res)
	if err != nil {
		log.Fatal(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "node\t%s\n", st.NodeID)
	fmt.Fprintf(w, "backend\t%s\n", st.Backend)
	fmt.Fprintf(w, "state\t%s\n", st.State)
	fmt.Fprintf(w, "tensor\t%s\n", st.Tensor)
	fmt.Fprintf(w, "frames\t%d\n", st.Frames)
	fmt.Fprintf(w, "tensors\t%d\n", st.Tensors)
	fmt.Fprintf(w, "capture errors\t%d\n", st.CaptureErrors)
	fmt.Fprintf(w, "emit errors\t%d\n", st.EmitErrors)
	w.Flush()
}
