/*
Package dsl provides a Go DSL for building agents in code instead of YAML or JSON files.

It is useful for tests, generated agents and IDE-checked definitions.

Example usage:

	b := dsl.New("pizza")
	b.Intent("order", "I want a pizza", "order a pizza")
	b.Intent("cancel", "cancel", "never mind")
	b.Entity("size").Value("large", "big").Value("small", "little")

	order := b.Flow("order")
	order.WhenIntent("cancel", dsl.EndSession, "Maybe next time.")
	order.Page("size").
		Param("size", "size").Required().Prompt("What size?").Done().
		When(`$page.params.status = "FINAL"`, dsl.ToPage("confirm"))
	order.Page("confirm").Entry("One $session.params.size pizza coming up!")
	order.StartPage("size")

	loader, err := b.Build()
	// ... pass loader to parley.New(...)
*/
package dsl
