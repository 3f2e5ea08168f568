// Package testutil provides an in-memory discovery backend that is also a
// lifecycle component, for tests that need to seed or inspect
// registrations.
//
//	disc := testutil.NewComponent()
//	disc.AddInstance(discovery.ServiceInstance{
//	    Interface: "calculator.v1.CalculatorService", Host: "127.0.0.1", Port: 5556,
//	})
//	rtestutil.T(t).Setup(disc)
//
//	inst, _ := discovery.NewResolver(disc, discovery.Config{}, logger.Nop()).
//	    Resolve(ctx, discovery.Query{Interface: "calculator.v1.CalculatorService"})
package testutil
