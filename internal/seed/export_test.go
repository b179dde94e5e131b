package seed

// DemoCards exposes the demo catalog to the external seed_test package.
var DemoCards = demoCards
