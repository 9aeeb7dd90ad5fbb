package faq

// SeedEntries are the profile FAQs loaded into an empty store.
var SeedEntries = []Entry{
	{
		Question: "¿Cuáles son mis principales tecnologías?",
		Answer:   "Mis principales tecnologías incluyen Java/Spring Boot, Python, React, AWS, Docker, Kubernetes, PostgreSQL, y arquitecturas de microservicios.",
		Category: "tecnologias",
		Tags:     []string{"java", "python", "react", "aws", "microservicios"},
	},
	{
		Question: "¿Cuántos años de experiencia tengo?",
		Answer:   "Tengo más de 10 años de experiencia en desarrollo de software y arquitectura de soluciones, con especialización en transformación digital.",
		Category: "experiencia",
		Tags:     []string{"experiencia", "años", "trayectoria"},
	},
	{
		Question: "¿En qué sectores he trabajado?",
		Answer:   "He trabajado principalmente en el sector financiero, específicamente en banca digital, pagos, y servicios financieros. También tengo experiencia en e-commerce y tecnología empresarial.",
		Category: "industria",
		Tags:     []string{"fintech", "banca", "pagos", "ecommerce"},
	},
	{
		Question: "¿Qué certificaciones tengo?",
		Answer:   "Poseo certificaciones como AWS Solutions Architect Professional, Google Cloud Professional Cloud Architect, Certified Kubernetes Administrator (CKA), y Spring Professional Certification.",
		Category: "certificaciones",
		Tags:     []string{"aws", "gcp", "kubernetes", "spring", "certificaciones"},
	},
	{
		Question: "¿Cuál es mi educación?",
		Answer:   "Tengo una Maestría en Arquitectura de Software y soy Ingeniero en Sistemas de Información, graduado Magna Cum Laude.",
		Category: "educacion",
		Tags:     []string{"maestria", "ingenieria", "educacion", "universidad"},
	},
	{
		Question: "¿Qué proyectos destacados he liderado?",
		Answer:   "He liderado la arquitectura de una plataforma de banca digital que sirve a más de 2M de usuarios y el diseño de un marco de arquitectura empresarial para una corporación multinacional.",
		Category: "proyectos",
		Tags:     []string{"banca digital", "arquitectura empresarial", "liderazgo"},
	},
	{
		Question: "¿Qué metodologías de trabajo domino?",
		Answer:   "Domino metodologías ágiles como Scrum, Design Thinking, Lean Startup, y prácticas de DevOps. También tengo experiencia con frameworks de arquitectura como TOGAF.",
		Category: "metodologias",
		Tags:     []string{"agile", "scrum", "devops", "togaf", "metodologias"},
	},
	{
		Question: "¿He publicado artículos o dado conferencias?",
		Answer:   "Sí, he publicado artículos sobre microservicios y arquitectura event-driven, y he sido speaker en DevOps Days y Tech Summit, presentando sobre transformación de monolitos a microservicios.",
		Category: "publicaciones",
		Tags:     []string{"articulos", "conferencias", "speaker", "devops"},
	},
	{
		Question: "¿Qué idiomas hablo?",
		Answer:   "Hablo español (nativo), inglés a nivel profesional (C1), y portugués a nivel intermedio (B2).",
		Category: "idiomas",
		Tags:     []string{"español", "ingles", "portugues", "idiomas"},
	},
	{
		Question: "¿Cuáles son mis fortalezas como arquitecto?",
		Answer:   "Mis fortalezas incluyen el diseño de arquitecturas escalables, liderazgo técnico, mentoreo de equipos, optimización de performance, y la capacidad de traducir requerimientos de negocio en soluciones técnicas efectivas.",
		Category: "fortalezas",
		Tags:     []string{"liderazgo", "escalabilidad", "mentoring", "performance"},
	},
}
