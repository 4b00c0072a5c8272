package onboarding

// SetupWizardWelcome is printed before the first step
const SetupWizardWelcome = `
╔════════════════════════════════════════════════════════════════╗
║                    Welcome to medremind                        ║
╚════════════════════════════════════════════════════════════════╝

medremind rings an alarm at each medication's time of day and keeps
ringing until you mark it taken, snooze it or dismiss it.

This wizard writes a config file. You can edit it later.

Press Enter to continue...`

// SetupCompleteMessage is printed after the config has been written
const SetupCompleteMessage = `
╔════════════════════════════════════════════════════════════════╗
║                      Setup complete                            ║
╚════════════════════════════════════════════════════════════════╝

Data directory: {{.DataDir}}
Config file:    {{.ConfigPath}}

Start the reminder server with:

  medremind

Then add a medication:

  curl -X POST http://localhost:{{.Port}}/api/medications \
    -H "Authorization: Bearer <token>" \
    -d '{"name":"Metformin","dosage":"500mg","time":"08:00"}'
`
