package main

import (
	"context"
	"strings"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/poa"
)

const echoTypeID = "IDL:orbd/Echo:1.0"

func newEchoServant() *poa.Skeleton {
	return poa.NewSkeleton(echoTypeID).
		MustHandle("echo", func(_ context.Context, in *cdr.Decoder, out *cdr.Encoder) error {
			msg, err := in.ReadString()
			if err != nil {
				return err
			}
			out.WriteString(msg)
			return nil
		}).
		MustHandle("upper", func(_ context.Context, in *cdr.Decoder, out *cdr.Encoder) error {
			msg, err := in.ReadString()
			if err != nil {
				return err
			}
			out.WriteString(strings.ToUpper(msg))
			return nil
		})
}

// setupEcho publishes the echo object as "Echo" and recreates the "demo"
// child adapter on demand.
func setupEcho(root *poa.POA) (map[string]*ior.IOR, error) {
	id := ior.ObjectID("echo")
	if err := root.Activate(id, newEchoServant(), echoTypeID); err != nil {
		return nil, err
	}
	return map[string]*ior.IOR{"Echo": root.Reference(id, echoTypeID)}, nil
}

func demoActivator(p *poa.POA) error {
	p.SetDefaultServant(newEchoServant())
	return nil
}
